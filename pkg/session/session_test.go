package session

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"danfescan/pkg/capture"
	"danfescan/pkg/decoder"
	"danfescan/pkg/haptic"
	"danfescan/pkg/hardware"
	"danfescan/pkg/media"

	"github.com/makiuchi-d/gozxing"
)

const testDebounce = 5 * time.Millisecond

// tagged is a frame whose content the fake decoder reads directly:
// "" is an empty frame, "!" a broken one, anything else a barcode.
type tagged struct {
	*image.Gray
	text string
}

func frameOf(text string) image.Image {
	return tagged{Gray: image.NewGray(image.Rect(0, 0, 1, 1)), text: text}
}

type tagDecoder struct{}

func (tagDecoder) Decode(img image.Image) (*decoder.Result, error) {
	f, ok := img.(tagged)
	switch {
	case !ok || f.text == "":
		return nil, decoder.ErrNotFound
	case f.text == "!":
		return nil, errors.New("corrupt frame")
	default:
		return &decoder.Result{Text: f.text, Format: gozxing.BarcodeFormat_EAN_13}, nil
	}
}

type fakeStream struct {
	frames chan image.Image
	closed atomic.Int32
	ended  sync.Once
}

func (s *fakeStream) Frames() <-chan image.Image { return s.frames }
func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}
func (s *fakeStream) end() { s.ended.Do(func() { close(s.frames) }) }

// fakeDevice hands out fakeStreams. When gate is set, Open waits for it and
// ignores ctx, standing in for a platform that cannot cancel acquisition.
type fakeDevice struct {
	mu      sync.Mutex
	opens   int
	err     error
	gate    chan struct{}
	entered chan struct{}
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	d.opens++
	gate, entered, err := d.gate, d.entered, d.err
	d.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	st := &fakeStream{frames: make(chan image.Image)}
	d.mu.Lock()
	d.streams = append(d.streams, st)
	d.mu.Unlock()
	return st, nil
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDevice) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[i]
}

// recorder collects callback invocations.
type recorder struct {
	mu       sync.Mutex
	detected []string
	errors   []string
	vibrated int
	onDetect func(string) error
}

func (r *recorder) options(dev capture.Device) Options {
	return Options{
		Device:   dev,
		Sink:     capture.Discard,
		Debounce: testDebounce,
		Haptic: haptic.Func(func(time.Duration) {
			r.mu.Lock()
			r.vibrated++
			r.mu.Unlock()
		}),
		NewDecoder: func(context.Context) (decoder.FrameDecoder, error) { return tagDecoder{}, nil },
		OnDetected: func(v string) error {
			r.mu.Lock()
			r.detected = append(r.detected, v)
			hook := r.onDetect
			r.mu.Unlock()
			if hook != nil {
				return hook(v)
			}
			return nil
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) setOnDetect(hook func(string) error) {
	r.mu.Lock()
	r.onDetect = hook
	r.mu.Unlock()
}

func (r *recorder) snapshot() (detected, errs []string, vibrated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.detected...), append([]string(nil), r.errors...), r.vibrated
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func feed(t *testing.T, st *fakeStream, f image.Image) {
	t.Helper()
	select {
	case st.frames <- f:
	case <-time.After(2 * time.Second):
		t.Fatal("decode loop did not take the frame")
	}
}

// scanning activates s and waits until it is Scanning.
func scanning(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatalf("Activate returned %v", err)
	}
	waitFor(t, "Scanning", func() bool { return s.State() == Scanning })
}

func TestSession_DetectionStopsBeforeHandler(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	type observed struct {
		state     State
		streaming bool
	}
	inHandler := make(chan observed, 1)
	rec.onDetect = func(string) error {
		inHandler <- observed{s.State(), s.Streaming()}
		return nil
	}

	scanning(t, s)
	st := dev.stream(0)
	feed(t, st, frameOf(""))
	feed(t, st, frameOf("7891234567895"))

	waitFor(t, "detection", func() bool { d, _, _ := rec.snapshot(); return len(d) == 1 })

	detected, errs, vibrated := rec.snapshot()
	if detected[0] != "7891234567895" {
		t.Errorf("expected 7891234567895, got %q", detected[0])
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if vibrated != 1 {
		t.Errorf("expected haptic once, got %d", vibrated)
	}
	select {
	case got := <-inHandler:
		if got.state != Closed || got.streaming {
			t.Errorf("handler ran before teardown: state=%s streaming=%t", got.state, got.streaming)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	if s.State() != Closed || s.Streaming() || s.Locked() {
		t.Errorf("expected Closed without handle, got %s streaming=%t locked=%t", s.State(), s.Streaming(), s.Locked())
	}
	if st.closed.Load() != 1 {
		t.Errorf("expected stream released once, got %d", st.closed.Load())
	}

	// Late callbacks from the finished activation are ignored.
	s.OnDecodeAttempt(decoder.Event{Kind: decoder.Detected, Result: &decoder.Result{Text: "7891234567895"}})
	if d, _, _ := rec.snapshot(); len(d) != 1 {
		t.Errorf("expected a single detection, got %v", d)
	}
}

func TestSession_LockIsIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	release := make(chan struct{})
	rec.onDetect = func(string) error {
		<-release
		return nil
	}

	scanning(t, s)
	feed(t, dev.stream(0), frameOf("111"))
	waitFor(t, "detection", func() bool { d, _, _ := rec.snapshot(); return len(d) == 1 })

	// The activation is over; more results must not reach the handler.
	for i := 0; i < 3; i++ {
		s.OnDecodeAttempt(decoder.Event{Kind: decoder.Detected, Result: &decoder.Result{Text: "222"}})
	}
	close(release)

	if d, _, _ := rec.snapshot(); len(d) != 1 || d[0] != "111" {
		t.Errorf("expected only 111, got %v", d)
	}
}

func TestSession_AcquisitionFailure(t *testing.T) {
	dev := &fakeDevice{err: errors.New("NotAllowedError: permission denied")}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatalf("Activate returned %v", err)
	}
	waitFor(t, "error", func() bool { _, e, _ := rec.snapshot(); return len(e) > 0 })
	s.Wait()

	_, errs, _ := rec.snapshot()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if !strings.HasPrefix(errs[0], "Nao foi possivel acessar a camera") {
		t.Errorf("unexpected message %q", errs[0])
	}
	if s.State() != Closed || s.Streaming() {
		t.Errorf("expected Closed without handle, got %s", s.State())
	}
}

func TestSession_WhitespaceIsNoDetection(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	scanning(t, s)
	s.OnDecodeAttempt(decoder.Event{Kind: decoder.Detected, Result: &decoder.Result{Text: "  \t "}})
	feed(t, dev.stream(0), frameOf("   "))
	// Two more frames guarantee the whitespace event has been handled.
	feed(t, dev.stream(0), frameOf(""))
	feed(t, dev.stream(0), frameOf(""))

	if d, _, v := rec.snapshot(); len(d) != 0 || v != 0 {
		t.Errorf("expected no detection, got %v (haptic %d)", d, v)
	}
	if s.State() != Scanning || !s.Streaming() {
		t.Errorf("expected to keep scanning, got %s", s.State())
	}
}

func TestSession_DecodeFailureKeepsScanning(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	scanning(t, s)
	feed(t, dev.stream(0), frameOf("!"))
	waitFor(t, "error", func() bool { _, e, _ := rec.snapshot(); return len(e) == 1 })

	_, errs, _ := rec.snapshot()
	if errs[0] != DecodeUnexpectedFailure.Message() {
		t.Errorf("unexpected message %q", errs[0])
	}
	if s.State() != Scanning {
		t.Errorf("expected Scanning, got %s", s.State())
	}

	feed(t, dev.stream(0), frameOf("42"))
	waitFor(t, "detection", func() bool { d, _, _ := rec.snapshot(); return len(d) == 1 })
}

func TestSession_StopScannerIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	s.StopScanner()
	if s.State() != Closed {
		t.Fatalf("expected Closed, got %s", s.State())
	}

	scanning(t, s)
	s.StopScanner()
	s.StopScanner()
	if s.State() != Closed || s.Streaming() || s.Locked() {
		t.Errorf("expected Closed without handle, got %s", s.State())
	}
	if n := dev.stream(0).closed.Load(); n != 1 {
		t.Errorf("expected stream closed once, got %d", n)
	}
}

func TestSession_DebounceCoalescesToggles(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	opts := rec.options(dev)
	opts.Debounce = DefaultDebounce
	s := New(opts)
	defer s.Teardown()

	ctx := context.Background()
	if err := s.Activate(ctx, capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	s.Deactivate()
	if err := s.Activate(ctx, capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Scanning", func() bool { return s.State() == Scanning })
	s.Deactivate()
	s.Wait()

	if n := dev.openCount(); n != 1 {
		t.Errorf("expected one acquisition, got %d", n)
	}
}

func TestSession_CancelDuringAcquisition(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{}), entered: make(chan struct{})}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	<-dev.entered
	s.Deactivate()
	if s.State() != Closed {
		t.Errorf("expected Closed after Deactivate, got %s", s.State())
	}
	close(dev.gate)
	s.Wait()

	if s.Streaming() || s.State() != Closed {
		t.Errorf("cancelled activation resurrected the session: %s", s.State())
	}
	if n := dev.stream(0).closed.Load(); n != 1 {
		t.Errorf("expected the late stream to be released, got %d closes", n)
	}
	if _, errs, _ := rec.snapshot(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestSession_TeardownDuringAcquisition(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{}), entered: make(chan struct{}), err: errors.New("late failure")}
	rec := &recorder{}
	s := New(rec.options(dev))

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	<-dev.entered
	s.Teardown()
	close(dev.gate)
	s.Wait()

	if _, errs, _ := rec.snapshot(); len(errs) != 0 {
		t.Errorf("late failure leaked past teardown: %v", errs)
	}
	if err := s.Activate(context.Background(), capture.Constraints{}); !errors.Is(err, ErrTornDown) {
		t.Errorf("expected ErrTornDown, got %v", err)
	}
}

func TestSession_SingleLiveHandle(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	scanning(t, s)
	for i := 0; i < 5; i++ {
		if err := s.Activate(context.Background(), capture.Constraints{}); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
	}
	if n := dev.openCount(); n != 1 {
		t.Errorf("expected one acquisition, got %d", n)
	}

	// Reopen from the result handler, the way a host scanning in a loop does.
	rec.setOnDetect(func(string) error {
		return s.Activate(context.Background(), capture.Constraints{})
	})
	feed(t, dev.stream(0), frameOf("1"))
	waitFor(t, "second activation", func() bool { return s.State() == Scanning && dev.openCount() == 2 })
	if dev.stream(0).closed.Load() != 1 {
		t.Error("first stream still live while the second is scanning")
	}
}

func TestSession_DeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	opts := rec.options(dev)
	opts.Sink = nil
	s := New(opts)
	defer s.Teardown()

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	_, errs, _ := rec.snapshot()
	if len(errs) != 1 || errs[0] != DeviceUnavailable.Message() {
		t.Errorf("expected DeviceUnavailable message, got %v", errs)
	}
	if s.State() != Closed || dev.openCount() != 0 {
		t.Errorf("expected Closed without acquisition, got %s (%d opens)", s.State(), dev.openCount())
	}
}

func TestSession_DecoderKeptWarm(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	opts := rec.options(dev)
	var builds atomic.Int32
	opts.NewDecoder = func(context.Context) (decoder.FrameDecoder, error) {
		if builds.Add(1) == 1 {
			return nil, errors.New("engine not ready")
		}
		return tagDecoder{}, nil
	}
	s := New(opts)
	defer s.Teardown()

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "init error", func() bool { _, e, _ := rec.snapshot(); return len(e) == 1 })
	s.Wait()
	if _, errs, _ := rec.snapshot(); errs[0] != DecoderInitFailed.Message() {
		t.Errorf("unexpected message %q", errs[0])
	}
	if s.State() != Closed {
		t.Fatalf("expected Closed after init failure, got %s", s.State())
	}

	scanning(t, s)
	s.Deactivate()
	scanning(t, s)

	if n := builds.Load(); n != 2 {
		t.Errorf("expected the decoder to be built once after the failure, got %d builds", n)
	}
}

func TestSession_StreamLost(t *testing.T) {
	dev := &fakeDevice{}
	rec := &recorder{}
	s := New(rec.options(dev))
	defer s.Teardown()

	scanning(t, s)
	dev.stream(0).end()
	waitFor(t, "Closed", func() bool { return s.State() == Closed })

	_, errs, _ := rec.snapshot()
	if len(errs) != 1 || errs[0] != StreamAcquisitionFailed.Message() {
		t.Errorf("expected a camera error, got %v", errs)
	}
}

func TestSession_CoreDeviceEndToEnd(t *testing.T) {
	img, err := media.Render("7891234567895", gozxing.BarcodeFormat_EAN_13, 0, 0)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	dev := hardware.NewCore(5*time.Millisecond, img)

	done := make(chan string, 1)
	var shown atomic.Int32
	s := New(Options{
		Device:   dev,
		Sink:     capture.SinkFunc(func(image.Image) { shown.Add(1) }),
		Debounce: testDebounce,
		OnDetected: func(v string) error {
			done <- v
			return nil
		},
	})
	defer s.Teardown()

	if err := s.Activate(context.Background(), capture.Constraints{}); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-done:
		if v != "7891234567895" {
			t.Errorf("expected 7891234567895, got %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no detection from the core device")
	}
	if shown.Load() == 0 {
		t.Error("no frame reached the render target")
	}
}

func TestScanError(t *testing.T) {
	cause := errors.New("permission denied")
	err := newScanError(StreamAcquisitionFailed, cause)
	if !errors.Is(err, cause) {
		t.Error("ScanError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "StreamAcquisitionFailed") {
		t.Errorf("unexpected Error(): %s", err)
	}
	var se *ScanError
	if !errors.As(error(err), &se) || se.Kind != StreamAcquisitionFailed {
		t.Error("errors.As failed")
	}
}
