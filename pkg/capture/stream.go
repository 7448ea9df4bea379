package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"danfescan/pkg/log"
)

// FrameFunc produces the next frame of a stream. Returning io.EOF ends the
// stream; any other error drops the frame and the stream carries on.
type FrameFunc func(ctx context.Context) (image.Image, error)

// pacedStream calls a FrameFunc once per interval and delivers the frames
// through a one-slot channel. A frame is dropped when the consumer has not
// taken the previous one yet.
type pacedStream struct {
	frames chan image.Image
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewStream starts a stream driven by next. The stream is independent of
// any acquisition context and runs until Close or until next returns io.EOF.
func NewStream(interval time.Duration, next FrameFunc) Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &pacedStream{
		frames: make(chan image.Image, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, interval, next)
	return s
}

func (s *pacedStream) run(ctx context.Context, interval time.Duration, next FrameFunc) {
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, err := next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Debug("capture: dropping frame: %v", err)
		default:
			select {
			case s.frames <- frame:
			default:
				log.Trace("capture: consumer busy, frame dropped")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *pacedStream) Frames() <-chan image.Image { return s.frames }

func (s *pacedStream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
