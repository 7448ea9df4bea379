// Package ui is the interactive terminal front end of the scanning station.
// It mirrors the camera as ASCII art and maps keys onto the scanner modal:
// space toggles it (or scans the next code after a read), Esc dismisses it
// and q quits.
package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"danfescan/pkg/log"
	"danfescan/pkg/modal"
	"danfescan/pkg/session"

	"github.com/nsf/termbox-go"
)

// ramp orders characters from dark to light.
const ramp = " .:-=+*#%@"

const refreshInterval = 100 * time.Millisecond

// Presenter holds what the screen shows. Its methods are safe to call from
// the session's goroutines; it implements capture.Sink.
type Presenter struct {
	mu      sync.Mutex
	frame   image.Image
	frames  int
	message string
	isError bool
	scans   []string
}

func NewPresenter() *Presenter {
	return &Presenter{message: "Espaco abre o leitor, Esc fecha, q sai."}
}

// Show keeps the latest frame for the next redraw.
func (p *Presenter) Show(frame image.Image) {
	p.mu.Lock()
	p.frame = frame
	p.frames++
	p.mu.Unlock()
}

// Detected records a read and shows it.
func (p *Presenter) Detected(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scans = append(p.scans, value)
	p.message = fmt.Sprintf("Lido: %s", value)
	p.isError = false
	p.frame = nil
}

// Error shows an operator-facing failure message.
func (p *Presenter) Error(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = message
	p.isError = true
}

// Closed clears the camera mirror after the modal was dismissed.
func (p *Presenter) Closed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = nil
	p.message = "Leitor fechado."
	p.isError = false
}

// Scans returns the values read so far.
func (p *Presenter) Scans() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scans...)
}

// Action is what a key press asks for.
type Action int

const (
	None Action = iota
	Toggle
	Dismiss
	Quit
)

// ActionFor maps a termbox event to an Action.
func ActionFor(ev termbox.Event) Action {
	if ev.Type != termbox.EventKey {
		return None
	}
	switch {
	case ev.Key == termbox.KeySpace, ev.Ch == ' ':
		return Toggle
	case ev.Key == termbox.KeyEsc:
		return Dismiss
	case ev.Key == termbox.KeyCtrlC, ev.Ch == 'q', ev.Ch == 'Q':
		return Quit
	}
	return None
}

// Run owns the terminal until q is pressed or ctx ends. The modal is
// unmounted on return.
func Run(ctx context.Context, m *modal.Modal, s *session.Session, p *Presenter) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("failed to initialise terminal: %w", err)
	}
	defer termbox.Close()
	defer m.Unmount()

	events := make(chan termbox.Event)
	go func() {
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt {
				close(events)
				return
			}
			events <- ev
		}
	}()
	defer func() {
		termbox.Interrupt()
		for range events {
		}
	}()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		p.draw(s)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case ev := <-events:
			if ev.Type == termbox.EventError {
				return fmt.Errorf("terminal error: %w", ev.Err)
			}
			switch ActionFor(ev) {
			case Toggle:
				if m.Open() && s.State() == session.Closed {
					// A read closed the scanner; scan the next code.
					if err := m.Reopen(); err != nil {
						log.Error("ui: reopening scanner: %v", err)
					}
					continue
				}
				log.Debug("ui: toggling scanner (open=%t)", !m.Open())
				m.SetOpen(!m.Open())
			case Dismiss:
				m.Dismiss()
			case Quit:
				return nil
			}
		}
	}
}

func (p *Presenter) draw(s *session.Session) {
	w, h := termbox.Size()
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	p.mu.Lock()
	frame, frames, message, isError := p.frame, p.frames, p.message, p.isError
	scans := len(p.scans)
	p.mu.Unlock()

	status := fmt.Sprintf("[%s] quadros: %d  leituras: %d", s.State(), frames, scans)
	drawText(0, 0, status, termbox.ColorCyan)

	if frame != nil && h > 3 {
		for y, line := range ASCIIFrame(frame, w, h-3) {
			drawText(0, y+1, line, termbox.ColorDefault)
		}
	}

	fg := termbox.ColorGreen
	if isError {
		fg = termbox.ColorRed
	}
	drawText(0, h-1, message, fg)
	termbox.Flush()
}

func drawText(x, y int, text string, fg termbox.Attribute) {
	for _, r := range text {
		termbox.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}

// ASCIIFrame downsamples img to at most cols×rows characters, darkest
// pixels first in the ramp. Terminal cells are about twice as tall as wide,
// which the row count accounts for.
func ASCIIFrame(img image.Image, cols, rows int) []string {
	b := img.Bounds()
	if cols <= 0 || rows <= 0 || b.Empty() {
		return nil
	}
	if cols > b.Dx() {
		cols = b.Dx()
	}
	if r := b.Dy() * cols / b.Dx() / 2; r < rows {
		rows = max(r, 1)
	}

	lines := make([]string, rows)
	buf := make([]byte, cols)
	for y := 0; y < rows; y++ {
		py := b.Min.Y + y*b.Dy()/rows
		for x := 0; x < cols; x++ {
			px := b.Min.X + x*b.Dx()/cols
			g := color.GrayModel.Convert(img.At(px, py)).(color.Gray)
			buf[x] = ramp[int(g.Y)*(len(ramp)-1)/255]
		}
		lines[y] = string(buf)
	}
	return lines
}
