// Package capture defines the contract between the scan session and the
// devices that supply live video frames.
package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrClosed is returned by operations on a stream that was already closed.
var ErrClosed = errors.New("capture: stream closed")

// Constraints describe the stream a caller would like. Every field is a
// preference; devices fall back to whatever they can deliver.
type Constraints struct {
	// FacingMode is "environment" for the rear camera, "user" for the front.
	FacingMode    string
	Width         int
	Height        int
	FrameInterval time.Duration
}

// Device supplies live video streams.
type Device interface {
	// Open acquires the device and starts delivering frames. It blocks until
	// the stream is live, the device fails, or ctx is done.
	Open(ctx context.Context, c Constraints) (Stream, error)
	Name() string
}

// Stream is a live source of frames. Frames is closed when the stream ends.
type Stream interface {
	Frames() <-chan image.Image
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Sink receives every frame that is processed, typically a preview surface.
type Sink interface {
	Show(frame image.Image)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(frame image.Image)

func (f SinkFunc) Show(frame image.Image) { f(frame) }

// Discard is a Sink that drops every frame.
var Discard Sink = SinkFunc(func(image.Image) {})
