package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"danfescan/pkg/config"
	"danfescan/pkg/crypto"
	"danfescan/pkg/hardware"
	"danfescan/pkg/log"
	"danfescan/pkg/metrics"
	"danfescan/pkg/ui"
)

func main() {
	// 1. Load configuration from flags.
	cfg := config.NewConfig()
	crypto.InitCryptoParams(cfg.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := hardware.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize hardware: %v", err)
	}

	var st *Station
	if cfg.UI {
		st, err = runInteractive(ctx, cfg, hw)
	} else {
		st = NewStation(cfg, hw, nil, nil)
		err = st.RunBatch(ctx)
	}
	if err != nil {
		log.Fatalf("Scanner failed: %v", err)
	}

	analyzer := metrics.NewAnalyzer()
	seal, err := st.Finish(ctx, analyzer)
	if err != nil {
		log.Fatalf("Failed to finish run: %v", err)
	}

	fmt.Println("-------------------------------------------------")
	fmt.Println(describeSeal(seal))
	if cfg.PrintMetrics {
		analyzer.Print(os.Stdout)
	}
	fmt.Println("-------------------------------------------------")
}

// runInteractive hands the terminal to the UI. Logs go to a file meanwhile
// so they do not tear the screen.
func runInteractive(ctx context.Context, cfg *config.Config, hw hardware.Hardware) (*Station, error) {
	logPath := filepath.Join(cfg.ResultsPath, "scanner.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", logPath, err)
	}
	log.SetOutput(logFile)
	defer func() {
		log.SetOutput(os.Stderr)
		logFile.Close()
	}()

	presenter := ui.NewPresenter()
	st := NewStation(cfg, hw, presenter, presenter.Closed)
	st.onDetected = presenter.Detected
	st.onError = presenter.Error
	if err := st.loadDemoFrames(0); err != nil {
		return nil, err
	}

	if err := ui.Run(ctx, st.modal, st.session, presenter); err != nil {
		return nil, err
	}
	return st, nil
}
