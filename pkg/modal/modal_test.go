package modal

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"danfescan/pkg/capture"
	"danfescan/pkg/hardware"
	"danfescan/pkg/session"
)

type countingDevice struct {
	capture.Device
	opens atomic.Int32
}

func (d *countingDevice) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	d.opens.Add(1)
	return d.Device.Open(ctx, c)
}

func newModal(t *testing.T, debounce time.Duration, onClose func()) (*Modal, *session.Session, *countingDevice) {
	t.Helper()
	dev := &countingDevice{Device: hardware.NewCore(time.Millisecond, image.NewGray(image.Rect(0, 0, 8, 8)))}
	s := session.New(session.Options{Device: dev, Sink: capture.Discard, Debounce: debounce})
	return New(s, capture.Constraints{}, onClose), s, dev
}

func waitState(t *testing.T, s *session.Session, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %s, stuck at %s", want, s.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestModal_SetOpen(t *testing.T) {
	m, s, dev := newModal(t, time.Millisecond, nil)
	defer m.Unmount()

	m.SetOpen(true)
	m.SetOpen(true)
	waitState(t, s, session.Scanning)
	if !m.Open() {
		t.Error("expected modal to be open")
	}

	m.SetOpen(false)
	if s.State() != session.Closed || s.Streaming() {
		t.Errorf("expected Closed, got %s", s.State())
	}
	s.Wait()
	if n := dev.opens.Load(); n != 1 {
		t.Errorf("expected one acquisition, got %d", n)
	}
}

func TestModal_ToggleWithinDebounce(t *testing.T) {
	m, s, dev := newModal(t, session.DefaultDebounce, nil)
	defer m.Unmount()

	m.SetOpen(true)
	m.SetOpen(false)
	m.SetOpen(true)
	waitState(t, s, session.Scanning)

	if n := dev.opens.Load(); n != 1 {
		t.Errorf("expected one acquisition, got %d", n)
	}
}

func TestModal_Dismiss(t *testing.T) {
	var closed atomic.Int32
	var streamingOnClose atomic.Bool
	var m *Modal
	var s *session.Session
	m, s, _ = newModal(t, time.Millisecond, func() {
		closed.Add(1)
		streamingOnClose.Store(s.Streaming())
	})
	defer m.Unmount()

	m.SetOpen(true)
	waitState(t, s, session.Scanning)
	m.Dismiss()

	if closed.Load() != 1 {
		t.Errorf("expected onClose once, got %d", closed.Load())
	}
	if streamingOnClose.Load() {
		t.Error("onClose ran before the scanner was stopped")
	}
	if m.Open() || s.State() != session.Closed {
		t.Errorf("expected closed modal and session, got open=%t state=%s", m.Open(), s.State())
	}
}

func TestModal_Reopen(t *testing.T) {
	m, s, dev := newModal(t, time.Millisecond, nil)
	defer m.Unmount()

	if err := m.Reopen(); err != nil {
		t.Errorf("Reopen on a closed modal returned %v", err)
	}
	if dev.opens.Load() != 0 {
		t.Error("Reopen activated a closed modal")
	}

	m.SetOpen(true)
	waitState(t, s, session.Scanning)
	s.StopScanner()
	if err := m.Reopen(); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	waitState(t, s, session.Scanning)
}

func TestModal_Unmount(t *testing.T) {
	var closed atomic.Int32
	m, s, dev := newModal(t, time.Millisecond, func() { closed.Add(1) })

	m.SetOpen(true)
	waitState(t, s, session.Scanning)
	m.Unmount()

	if s.State() != session.Closed || s.Streaming() {
		t.Errorf("expected Closed after unmount, got %s", s.State())
	}
	m.SetOpen(false)
	m.SetOpen(true)
	m.Dismiss()
	s.Wait()

	if n := dev.opens.Load(); n != 1 {
		t.Errorf("expected no acquisition after unmount, got %d", n)
	}
	if closed.Load() != 0 {
		t.Error("onClose called after unmount")
	}
	if err := s.Activate(context.Background(), capture.Constraints{}); !errors.Is(err, session.ErrTornDown) {
		t.Errorf("expected ErrTornDown, got %v", err)
	}
}
