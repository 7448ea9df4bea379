// Package haptic signals a successful read to the operator. Every call is
// fire-and-forget: feedback never blocks or fails a scan.
package haptic

import (
	"io"
	"os/exec"
	"strconv"
	"time"

	"danfescan/pkg/log"
)

// SuccessPulse is the vibration length used after a successful read.
const SuccessPulse = 200 * time.Millisecond

// Feedback produces a physical cue.
type Feedback interface {
	Vibrate(d time.Duration)
}

// Func adapts a plain function to the Feedback interface.
type Func func(d time.Duration)

func (f Func) Vibrate(d time.Duration) { f(d) }

// None is a Feedback that does nothing.
var None Feedback = Func(func(time.Duration) {})

// Bell rings the terminal bell on w.
type Bell struct {
	w io.Writer
}

func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Vibrate(time.Duration) {
	if _, err := io.WriteString(b.w, "\a"); err != nil {
		log.Debug("haptic: bell write failed: %v", err)
	}
}

// Command runs an external program, e.g. a GPIO buzzer helper, with the
// pulse length in milliseconds as its last argument. The process is not
// waited for beyond reaping.
type Command struct {
	name string
	args []string
}

func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

func (c *Command) Vibrate(d time.Duration) {
	args := append(append([]string(nil), c.args...), formatMillis(d))
	cmd := exec.Command(c.name, args...)
	if err := cmd.Start(); err != nil {
		log.Error("haptic: failed to run '%s': %v", c.name, err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("haptic: '%s' exited: %v", c.name, err)
		}
	}()
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
