package decoder

import (
	"context"
	"errors"
	"image"
	"sync"

	"danfescan/pkg/capture"
	"danfescan/pkg/log"
)

// Kind tags the outcome of one decode attempt.
type Kind int

const (
	Miss Kind = iota
	Detected
	Failure
)

func (k Kind) String() string {
	switch k {
	case Miss:
		return "Miss"
	case Detected:
		return "Detected"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Event is the outcome of decoding one frame.
type Event struct {
	Kind   Kind
	Result *Result // set when Kind is Detected
	Err    error   // set when Kind is Failure
}

// Text returns the decoded text, or "" when nothing was detected.
func (e Event) Text() string {
	if e.Result == nil {
		return ""
	}
	return e.Result.Text
}

// Classify turns the return values of a decode call into an Event.
func Classify(res *Result, err error) Event {
	switch {
	case err == nil && res != nil:
		return Event{Kind: Detected, Result: res}
	case err == nil, errors.Is(err, ErrNotFound):
		return Event{Kind: Miss}
	default:
		return Event{Kind: Failure, Err: err}
	}
}

// FrameDecoder decodes single frames. *Handle implements it.
type FrameDecoder interface {
	Decode(img image.Image) (*Result, error)
}

// Control binds a live stream to a decode loop. It owns the stream.
type Control struct {
	stream capture.Stream
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start launches the decode loop over stream. Every frame is shown on sink
// and then decoded; one Event is delivered per frame. The Events channel is
// closed when the loop ends, either because the stream ran dry or because
// Stop was called.
func Start(dec FrameDecoder, stream capture.Stream, sink capture.Sink) *Control {
	if sink == nil {
		sink = capture.Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Control{
		stream: stream,
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(ctx, dec, sink)
	return c
}

func (c *Control) run(ctx context.Context, dec FrameDecoder, sink capture.Sink) {
	defer close(c.done)
	defer close(c.events)

	frames := c.stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				log.Debug("decoder: stream ended")
				return
			}
			sink.Show(frame)
			ev := Classify(dec.Decode(frame))
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events yields one Event per processed frame.
func (c *Control) Events() <-chan Event { return c.events }

// Done is closed once the loop has exited.
func (c *Control) Done() <-chan struct{} { return c.done }

// Stop ends the loop and releases the stream. It is idempotent and returns
// once the loop has exited.
func (c *Control) Stop() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		if err := c.stream.Close(); err != nil {
			log.Error("decoder: closing stream: %v", err)
		}
	})
}
