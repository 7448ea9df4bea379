package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"time"

	"danfescan/pkg/capture"
	"danfescan/pkg/config"
	"danfescan/pkg/crypto"
	"danfescan/pkg/danfe"
	"danfescan/pkg/hardware"
	"danfescan/pkg/ledger"
	"danfescan/pkg/log"
	"danfescan/pkg/media"
	"danfescan/pkg/metrics"
	"danfescan/pkg/modal"
	"danfescan/pkg/result"
	"danfescan/pkg/session"

	"github.com/makiuchi-d/gozxing"
)

// demoLabels are replayed by the Core hardware when nothing else is loaded:
// a product code and a DANFE access key.
var demoLabels = []struct {
	value  string
	format gozxing.BarcodeFormat
}{
	{"7891234567895", gozxing.BarcodeFormat_EAN_13},
	{"35240112345678000195550010000001231123456781", gozxing.BarcodeFormat_CODE_128},
}

// Station ties the capture hardware, the scanning session and the ledger of
// one scanner run together.
type Station struct {
	config   *config.Config
	hw       hardware.Hardware
	session  *session.Session
	modal    *modal.Modal
	ledger   *ledger.Ledger
	metrics  *metrics.Recorder
	cred     *crypto.StationCredential
	detected chan string
	failed   chan string
	demo     []image.Image

	// onDetected and onError mirror session callbacks to a front end.
	onDetected func(string)
	onError    func(string)
}

// NewStation creates and initializes all components of a scanner run. A nil
// sink discards frames; onClose runs when the operator dismisses the scanner.
func NewStation(cfg *config.Config, hw hardware.Hardware, sink capture.Sink, onClose func()) *Station {
	st := &Station{
		config:   cfg,
		hw:       hw,
		ledger:   ledger.NewLedger(),
		metrics:  metrics.NewRecorder(cfg.PrintMetrics),
		cred:     crypto.NewStationCredential(),
		detected: make(chan string, 1),
		failed:   make(chan string, 1),
	}
	if sink == nil {
		sink = capture.Discard
	}

	st.session = session.New(session.Options{
		Device:     hw,
		Sink:       sink,
		Haptic:     hw,
		Debounce:   cfg.Debounce,
		OnDetected: st.handleDetected,
		OnError:    st.handleError,
		Observer:   st.metrics,
	})
	st.modal = modal.New(st.session, capture.Constraints{
		FacingMode:    cfg.Facing,
		Width:         cfg.Width,
		Height:        cfg.Height,
		FrameInterval: cfg.FrameInterval,
	}, onClose)
	return st
}

// renderDemoFrames draws the demo labels.
func renderDemoFrames() ([]image.Image, error) {
	frames := make([]image.Image, 0, len(demoLabels))
	for _, l := range demoLabels {
		img, err := media.Render(l.value, l.format, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to render demo label: %w", err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// handleDetected runs after the session stopped the scanner.
func (st *Station) handleDetected(value string) error {
	entry, err := st.ledger.Append(value, time.Now())
	if err != nil {
		log.Info("Already scanned: %s", entry)
	} else {
		log.Info("Scanned %s", entry)
		if entry.Kind == ledger.KindAccessKey {
			if key, err := danfe.Parse(value); err == nil {
				log.Info("  %s", key)
			}
		}
	}
	if st.onDetected != nil {
		st.onDetected(value)
	}

	select {
	case st.detected <- value:
	default:
	}
	return nil
}

// handleError forwards failures that closed the session; decode failures
// keep scanning and are only shown.
func (st *Station) handleError(message string) {
	if st.onError != nil {
		st.onError(message)
	}
	if st.session.State() != session.Closed {
		return
	}
	select {
	case st.failed <- message:
	default:
	}
}

// RunBatch scans config.Runs codes, reopening the scanner after each one.
func (st *Station) RunBatch(ctx context.Context) error {
	defer st.modal.Unmount()

	if err := st.loadDemoFrames(0); err != nil {
		return err
	}

	log.Info("Scanning %d code(s) on '%s' hardware...", st.config.Runs, st.hw.Name())
	st.modal.SetOpen(true)
	for run := uint64(0); run < st.config.Runs; run++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-st.failed:
			return fmt.Errorf("scanner stopped: %s", msg)
		case value := <-st.detected:
			fmt.Println(value)
		}
		if run+1 < st.config.Runs {
			if err := st.loadDemoFrames(int(run + 1)); err != nil {
				return err
			}
			if err := st.modal.Reopen(); err != nil {
				return fmt.Errorf("failed to reopen scanner: %w", err)
			}
		}
	}
	return nil
}

// loadDemoFrames gives Core hardware the demo labels, starting with label
// offset so successive runs read different codes. Other hardware is left
// alone.
func (st *Station) loadDemoFrames(offset int) error {
	core, ok := st.hw.(*hardware.Core)
	if !ok {
		return nil
	}
	if st.demo == nil {
		frames, err := renderDemoFrames()
		if err != nil {
			return err
		}
		st.demo = frames
	}
	rotated := make([]image.Image, 0, len(st.demo))
	for i := range st.demo {
		rotated = append(rotated, st.demo[(i+offset)%len(st.demo)])
	}
	core.Load(rotated...)
	return nil
}

// Finish verifies and seals the ledger, then writes the result files.
func (st *Station) Finish(ctx context.Context, analyzer *metrics.Analyzer) (*ledger.Seal, error) {
	st.session.Wait()

	if err := st.metrics.Record("Verify", func() error {
		return st.ledger.Verify(ctx, st.config.Cores)
	}); err != nil {
		return nil, fmt.Errorf("ledger verification failed: %w", err)
	}

	var seal *ledger.Seal
	if st.ledger.Len() > 0 {
		if err := st.metrics.Record("Seal", func() error {
			var err error
			seal, err = st.ledger.Seal(st.cred)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to seal ledger: %w", err)
		}
		if err := st.ledger.VerifySeal(seal); err != nil {
			return nil, fmt.Errorf("sealed ledger does not verify: %w", err)
		}
	}

	analyzer.Add(st.metrics)
	writer := result.NewWriter(st.config.ResultsPath, st.config.System, st.hw.Name(), int(st.config.Runs))
	if _, err := writer.WriteAllResults(st.ledger.Entries(), analyzer.Aggregate()); err != nil {
		return seal, fmt.Errorf("failed to write results: %w", err)
	}
	return seal, nil
}

// describeSeal renders a seal for the console.
func describeSeal(seal *ledger.Seal) string {
	if seal == nil {
		return "Ledger empty, nothing sealed."
	}
	pk, _ := seal.Sig.Pk.MarshalBinary()
	return fmt.Sprintf("Ledger root %s over %d scan(s)\nStation key %s\nSignature %s",
		hex.EncodeToString(seal.Root), seal.Count, hex.EncodeToString(pk), hex.EncodeToString(seal.Sig.Sig))
}
