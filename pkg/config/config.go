package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"danfescan/pkg/log"
)

const (
	// DefaultDebounce is the delay applied before a camera is requested, so
	// rapid open/close toggling does not hit the device twice.
	DefaultDebounce = 80 * time.Millisecond

	// FacingEnvironment asks for the rear camera on devices that have one.
	FacingEnvironment = "environment"
)

// SystemType defines the platforms the station runs on. The Peripheral
// hardware picks its camera command from it, see GetImageCommand().
type SystemType string

const (
	SystemMac   SystemType = "Mac"
	SystemKiosk SystemType = "Kiosk"
	SystemPi    SystemType = "Pi"
)

// HardwareType defines the capture device implementation to use.
type HardwareType string

const (
	HWCore       HardwareType = "Core"        // In-memory frames, no I/O.
	HWDisk       HardwareType = "Disk"        // Frames read from image/PDF files.
	HWPeripheral HardwareType = "Peripherals" // Physical camera driven by a command.
)

// HapticMode selects how a successful read is signalled.
type HapticMode string

const (
	HapticNone    HapticMode = "none"
	HapticBell    HapticMode = "bell"
	HapticCommand HapticMode = "command"
)

// Config holds all parameters for a scanning station.
type Config struct {
	HardwareType HardwareType
	System       SystemType

	FramesPath  string // Directory scanned by the Disk hardware.
	PicturePath string // Where the Peripheral hardware stores captured pictures.
	ResultsPath string

	Debounce      time.Duration
	FrameInterval time.Duration
	Facing        string
	Width         int
	Height        int

	Haptic        HapticMode
	HapticCommand string

	Runs  uint64
	Cores int
	UI    bool

	LogLevel     log.LogLevel
	PrintMetrics bool
	Seed         string
}

// Load builds a Config from the given command-line arguments.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("scanner", flag.ContinueOnError)

	hwType := fs.String("hw", "Core", "Capture hardware (Core, Disk, Peripherals).")
	system := fs.String("system", "Mac", "System the station runs on (Mac, Kiosk, Pi).")
	framesPath := fs.String("frames", "input/frames/", "Directory of images/PDFs replayed by the Disk hardware.")
	picPath := fs.String("pics", "output/pics/", "Path for storing pictures taken by the camera.")
	resultsPath := fs.String("results", "output/results/", "Path for storing scan results.")
	debounce := fs.Duration("debounce", DefaultDebounce, "Delay before the camera is requested.")
	interval := fs.Duration("frame-interval", 100*time.Millisecond, "Delay between two captured frames.")
	facing := fs.String("facing", FacingEnvironment, "Preferred camera facing mode.")
	width := fs.Int("width", 1280, "Preferred frame width.")
	height := fs.Int("height", 720, "Preferred frame height.")
	haptic := fs.String("haptic", "bell", "Feedback on a successful read (none, bell, command).")
	hapticCmd := fs.String("haptic-cmd", "", "Command run on a successful read when -haptic=command.")
	runs := fs.Uint64("runs", 1, "Number of codes to scan before exiting.")
	cores := fs.Int("cores", 1, "Workers used to load frames from disk.")
	ui := fs.Bool("ui", false, "Run the interactive terminal UI.")
	logLevel := fs.String("log-level", "info", "Set log level (trace, debug, info, error).")
	printMetrics := fs.Bool("print-metrics", false, "Whether to print scan latencies during execution.")
	seed := fs.String("seed", "", "Seed for the ledger sealing key. Empty means random.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HardwareType: HardwareType(*hwType),
		System:       SystemType(*system),

		FramesPath:  filepath.Clean(*framesPath),
		PicturePath: filepath.Clean(*picPath),
		ResultsPath: filepath.Clean(*resultsPath),

		Debounce:      *debounce,
		FrameInterval: *interval,
		Facing:        *facing,
		Width:         *width,
		Height:        *height,

		Haptic:        HapticMode(*haptic),
		HapticCommand: *hapticCmd,

		Runs:  *runs,
		Cores: *cores,
		UI:    *ui,

		LogLevel:     level,
		PrintMetrics: *printMetrics,
		Seed:         *seed,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfig creates a new Config by parsing the process command-line flags.
func NewConfig() *Config {
	log.Debug("Parsing command-line flags...")
	cfg, err := Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	if cfg.HardwareType == HWPeripheral {
		cfg.PicturePath = createDirectory(cfg.PicturePath)
	}
	cfg.ResultsPath = createDirectory(cfg.ResultsPath)

	log.Debug("Config: %s", cfg)
	return cfg
}

// Validate rejects combinations the station cannot run with.
func (c *Config) Validate() error {
	switch c.HardwareType {
	case HWCore, HWDisk, HWPeripheral:
	default:
		return fmt.Errorf("unknown hardware type specified: %s", c.HardwareType)
	}
	switch c.Haptic {
	case HapticNone, HapticBell:
	case HapticCommand:
		if c.HapticCommand == "" {
			return fmt.Errorf("-haptic=command requires -haptic-cmd")
		}
	default:
		return fmt.Errorf("unknown haptic mode: %s", c.Haptic)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %s", c.FrameInterval)
	}
	if c.Runs == 0 {
		return fmt.Errorf("runs must be at least 1")
	}
	if c.Cores < 1 {
		c.Cores = 1
	}
	return nil
}

// GetImageCommand returns the command to take a picture for the configured system.
func (c *Config) GetImageCommand(outputPath string) (string, []string, error) {
	switch c.System {
	case SystemPi, SystemKiosk:
		return "libcamera-still", []string{
			"-o", outputPath,
			"--timeout", "1",
			"--width", fmt.Sprint(c.Width),
			"--height", fmt.Sprint(c.Height),
			"--nopreview",
		}, nil
	case SystemMac:
		return "imagesnap", []string{"-q", outputPath}, nil
	default:
		return "", nil, fmt.Errorf("no camera command for system type %s", c.System)
	}
}

// String returns a string representation of the Config instance
func (c *Config) String() string {
	return fmt.Sprintf("Config{HW:%s System:%s Frames:%s PicPath:%s ResultsPath:%s "+
		"Debounce:%s Interval:%s Facing:%s Size:%dx%d Haptic:%s Runs:%d Cores:%d "+
		"UI:%t LogLevel:%d PrintMetrics:%t Seeded:%t}",
		c.HardwareType, c.System, c.FramesPath, c.PicturePath, c.ResultsPath,
		c.Debounce, c.FrameInterval, c.Facing, c.Width, c.Height, c.Haptic, c.Runs, c.Cores,
		c.UI, c.LogLevel, c.PrintMetrics, c.Seed != "")
}

// createDirectory ensures the specified directory exists, creating it if necessary.
func createDirectory(path string) string {
	path = filepath.Clean(path)
	if err := os.MkdirAll(path, 0755); err != nil {
		log.Fatalf("Failed to create directory %s: %v", path, err)
	}
	return path
}
