// Package session implements the barcode scanning session: camera
// acquisition, the continuous decode loop, detection locking and teardown.
//
// A Session moves through Closed → Initializing → Scanning → Locked →
// Closed. Scanning also returns to Closed on an explicit stop, and every
// failure leaves the session Closed or Scanning, never stuck. Failures never
// escape as return values; they are reported through Options.OnError with an
// operator-facing message.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"danfescan/pkg/capture"
	"danfescan/pkg/decoder"
	"danfescan/pkg/haptic"
	"danfescan/pkg/lazy"
	"danfescan/pkg/log"

	"github.com/makiuchi-d/gozxing"
)

// DefaultDebounce delays camera acquisition so that rapid open/close
// toggling results in a single device request.
const DefaultDebounce = 80 * time.Millisecond

// State is the lifecycle position of a session.
type State int

const (
	Closed State = iota
	Initializing
	Scanning
	Locked
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Initializing:
		return "Initializing"
	case Scanning:
		return "Scanning"
	case Locked:
		return "Locked"
	default:
		return "Unknown"
	}
}

// Observer receives stage latencies. metrics.Recorder implements it.
type Observer interface {
	Observe(name string, d time.Duration)
}

// Options configure a Session.
type Options struct {
	Device capture.Device
	// Sink is the render target frames are shown on. Activation fails with
	// DeviceUnavailable when it is nil.
	Sink   capture.Sink
	Haptic haptic.Feedback

	// Formats defaults to decoder.Symbologies.
	Formats []gozxing.BarcodeFormat
	// NewDecoder builds the decoder handle on first activation. Defaults to
	// a gozxing handle for Formats.
	NewDecoder func(ctx context.Context) (decoder.FrameDecoder, error)

	// Debounce defaults to DefaultDebounce when zero.
	Debounce time.Duration

	// OnDetected receives the trimmed decoded text after the scanner has
	// been stopped. The session does not reopen by itself.
	OnDetected func(value string) error
	// OnError receives an operator-facing message for every reported failure.
	OnError func(message string)

	Observer Observer
}

// Session is a single scanning session bound to one capture device. It is
// safe for concurrent use.
type Session struct {
	opts    Options
	decoder *lazy.Loader[decoder.FrameDecoder]

	mu        sync.Mutex
	state     State
	control   *decoder.Control
	locked    bool
	cancelled bool
	gen       uint64             // bumped on every activation and deactivation
	abort     context.CancelFunc // cancels the in-flight activation
	since     time.Time          // when Scanning began

	wg sync.WaitGroup
}

// New creates a Closed session. The decoder handle is built lazily on first
// activation and kept for the lifetime of the session.
func New(opts Options) *Session {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Haptic == nil {
		opts.Haptic = haptic.None
	}
	if len(opts.Formats) == 0 {
		opts.Formats = decoder.Symbologies
	}
	if opts.NewDecoder == nil {
		formats := opts.Formats
		opts.NewDecoder = func(context.Context) (decoder.FrameDecoder, error) {
			return decoder.New(formats)
		}
	}
	return &Session{
		opts:    opts,
		decoder: lazy.New(opts.NewDecoder),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Locked reports whether a detection is being handled.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Streaming reports whether a control handle is live.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control != nil
}

// Activate starts a new scanning session. It returns ErrBusy when the
// session is not Closed and ErrTornDown after Teardown; both leave the
// session untouched. Every other outcome, including failure, is delivered
// asynchronously through the callbacks.
func (s *Session) Activate(ctx context.Context, c capture.Constraints) error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return ErrTornDown
	}
	if s.state != Closed {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.opts.Sink == nil || s.opts.Device == nil {
		s.mu.Unlock()
		s.report(newScanError(DeviceUnavailable, nil))
		return nil
	}
	if c.FacingMode == "" {
		c.FacingMode = "environment"
	}

	actx, cancel := context.WithCancel(ctx)
	s.gen++
	gen := s.gen
	s.abort = cancel
	s.locked = false
	s.state = Initializing
	s.wg.Add(1)
	s.mu.Unlock()

	log.Debug("session: activating (gen %d, device %s)", gen, s.opts.Device.Name())
	go s.activate(actx, gen, c)
	return nil
}

// activate runs the asynchronous part of an activation. Every resumption
// point re-checks that the activation is still current.
func (s *Session) activate(ctx context.Context, gen uint64, c capture.Constraints) {
	defer s.wg.Done()

	t := time.NewTimer(s.opts.Debounce)
	select {
	case <-ctx.Done():
		t.Stop()
		log.Debug("session: activation %d abandoned during debounce", gen)
		s.abandon(gen)
		return
	case <-t.C:
	}
	start := time.Now()

	dec, err := s.decoder.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.abandon(gen)
			return
		}
		s.fail(gen, DecoderInitFailed, err)
		return
	}
	if !s.current(gen) {
		return
	}

	stream, err := s.opts.Device.Open(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			s.abandon(gen)
			return
		}
		s.fail(gen, StreamAcquisitionFailed, err)
		return
	}

	s.mu.Lock()
	if s.cancelled || s.gen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		// The session was closed while the camera was being acquired.
		log.Debug("session: activation %d superseded, releasing stream", gen)
		if err := stream.Close(); err != nil {
			log.Error("session: closing superseded stream: %v", err)
		}
		return
	}
	ctl := decoder.Start(dec, stream, s.opts.Sink)
	s.control = ctl
	s.state = Scanning
	// The stream outlives the acquisition context.
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	s.since = time.Now()
	s.mu.Unlock()

	s.observe("Acquire", time.Since(start))
	log.Debug("session: scanning (gen %d)", gen)
	s.pump(ctl)
}

// pump feeds decode events to the state machine until the loop ends.
func (s *Session) pump(ctl *decoder.Control) {
	for ev := range ctl.Events() {
		s.handle(ctl, ev)
	}

	if s.release(ctl) {
		// The device stopped delivering frames without being asked to.
		s.report(newScanError(StreamAcquisitionFailed, capture.ErrClosed))
	}
}

// OnDecodeAttempt feeds one decode outcome to the live activation. It is a
// no-op when no activation is live.
func (s *Session) OnDecodeAttempt(ev decoder.Event) {
	s.mu.Lock()
	ctl := s.control
	s.mu.Unlock()
	if ctl != nil {
		s.handle(ctl, ev)
	}
}

func (s *Session) handle(ctl *decoder.Control, ev decoder.Event) {
	s.mu.Lock()
	if s.cancelled || s.locked || s.control != ctl {
		s.mu.Unlock()
		return
	}

	switch ev.Kind {
	case decoder.Detected:
		text := strings.TrimSpace(ev.Text())
		if text == "" {
			s.mu.Unlock()
			return
		}
		s.locked = true
		s.state = Locked
		elapsed := time.Since(s.since)
		s.mu.Unlock()

		s.observe("Detect", elapsed)
		log.Info("session: detected %q", text)
		s.opts.Haptic.Vibrate(haptic.SuccessPulse)
		if !s.release(ctl) {
			// Closed by the host while the detection was being handled.
			return
		}

		if s.opts.OnDetected != nil {
			if err := s.opts.OnDetected(text); err != nil {
				log.Error("session: result handler failed for %q: %v", text, err)
			}
		}

	case decoder.Failure:
		s.mu.Unlock()
		s.report(newScanError(DecodeUnexpectedFailure, ev.Err))

	default:
		s.mu.Unlock()
	}
}

// StopScanner releases the live control handle, if any, and clears the
// detection lock. It is idempotent and safe from any state. An activation
// still Initializing is left alone; use Deactivate to cancel it.
func (s *Session) StopScanner() {
	s.release(nil)
}

// release stops the live control handle and reports whether there was one.
// A non-nil only restricts it to that specific handle.
func (s *Session) release(only *decoder.Control) bool {
	s.mu.Lock()
	ctl := s.control
	if only != nil && ctl != only {
		s.mu.Unlock()
		return false
	}
	s.control = nil
	s.locked = false
	if s.state == Scanning || s.state == Locked {
		s.state = Closed
	}
	s.mu.Unlock()

	if ctl != nil {
		ctl.Stop()
		log.Debug("session: scanner stopped")
	}
	return ctl != nil
}

// Deactivate closes the session: it cancels an in-flight activation, stops
// the scanner and returns to Closed. The decoder handle stays warm.
func (s *Session) Deactivate() {
	s.mu.Lock()
	s.gen++
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	if s.state == Initializing {
		s.state = Closed
	}
	s.mu.Unlock()

	s.StopScanner()
}

// Teardown permanently disposes of the session. Late effects of any
// in-flight activation are suppressed. The decoder handle is not released.
func (s *Session) Teardown() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	s.Deactivate()
}

// Wait blocks until background activations have finished. It must not be
// called from a callback.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cancelled && s.gen == gen
}

// fail ends activation gen with a reported error, unless it was superseded.
func (s *Session) fail(gen uint64, kind ErrorKind, err error) {
	if !s.close(gen) {
		log.Debug("session: activation %d failed after cancellation: %v", gen, err)
		return
	}
	s.report(newScanError(kind, err))
}

// abandon quietly closes activation gen after its context ended.
func (s *Session) abandon(gen uint64) {
	s.close(gen)
}

// close returns an Initializing activation gen to Closed. It reports false
// when gen was already superseded.
func (s *Session) close(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.gen != gen {
		return false
	}
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	s.state = Closed
	return true
}

func (s *Session) report(err *ScanError) {
	log.Error("session: %v", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err.Kind.Message())
	}
}

func (s *Session) observe(name string, d time.Duration) {
	if s.opts.Observer != nil {
		s.opts.Observer.Observe(name, d)
	}
}
