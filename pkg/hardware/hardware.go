package hardware

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"danfescan/pkg/capture"
	"danfescan/pkg/concurrency"
	"danfescan/pkg/config"
	"danfescan/pkg/haptic"
	"danfescan/pkg/log"
	"danfescan/pkg/media"
)

// baseHardware provides the feedback half shared by every implementation.
type baseHardware struct {
	feedback haptic.Feedback
}

func (h *baseHardware) Vibrate(d time.Duration) {
	if h.feedback != nil {
		h.feedback.Vibrate(d)
	}
}

// replay cycles through a fixed list of frames.
func replay(frames []image.Image, interval time.Duration) capture.Stream {
	i := 0
	return capture.NewStream(interval, func(ctx context.Context) (image.Image, error) {
		f := frames[i%len(frames)]
		i++
		return f, nil
	})
}

func frameInterval(c capture.Constraints, fallback time.Duration) time.Duration {
	if c.FrameInterval > 0 {
		return c.FrameInterval
	}
	return fallback
}

// --- Core (In-Memory) ---

// Core is a mock device that replays frames held in memory.
type Core struct {
	baseHardware
	mu       sync.Mutex
	frames   []image.Image
	interval time.Duration
}

// NewCore creates an in-memory device replaying frames.
func NewCore(interval time.Duration, frames ...image.Image) *Core {
	return &Core{interval: interval, frames: frames}
}

// Load replaces the frames replayed by future streams.
func (c *Core) Load(frames ...image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append([]image.Image(nil), frames...)
}

func (c *Core) Open(ctx context.Context, cons capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	frames := append([]image.Image(nil), c.frames...)
	c.mu.Unlock()
	if len(frames) == 0 {
		return nil, fmt.Errorf("core device has no frames loaded")
	}
	return replay(frames, frameInterval(cons, c.interval)), nil
}

func (c *Core) Name() string { return "Core" }

// --- Disk (Reads from files) ---

// Disk replays pictures and scanned PDFs found in a directory.
type Disk struct {
	baseHardware
	dir      string
	cores    int
	interval time.Duration
}

func newDisk(cfg *config.Config) *Disk {
	return &Disk{dir: cfg.FramesPath, cores: cfg.Cores, interval: cfg.FrameInterval}
}

// NewDisk creates a device reading frames from dir.
func NewDisk(dir string, cores int, interval time.Duration) *Disk {
	return &Disk{dir: dir, cores: cores, interval: interval}
}

func (d *Disk) Open(ctx context.Context, cons capture.Constraints) (capture.Stream, error) {
	paths, err := listFrameFiles(d.dir)
	if err != nil {
		return nil, err
	}

	pages, err := concurrency.Map(ctx, d.cores, paths, loadFrameFile)
	if err != nil {
		return nil, err
	}
	var frames []image.Image
	for _, p := range pages {
		frames = append(frames, p...)
	}
	log.Debug("disk device loaded %d frames from %d files in %s", len(frames), len(paths), d.dir)
	return replay(frames, frameInterval(cons, d.interval)), nil
}

func (d *Disk) Name() string { return "Disk" }

// listFrameFiles returns the sorted image and PDF files of dir.
func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read frames directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".pdf":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadFrameFile decodes a picture, or every image embedded in a PDF.
func loadFrameFile(path string) ([]image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		imgs, err := media.ExtractImages(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return imgs, nil
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("image.Decode failed for %s: %w", path, err)
	}
	return []image.Image{img}, nil
}

// --- Peripheral (Physical camera) ---

// Peripheral drives a physical camera through the system's capture command,
// taking one picture per frame.
type Peripheral struct {
	baseHardware
	cfg *config.Config

	// command builds the capture command line for an output file.
	command func(outputPath string) (string, []string, error)
}

func newPeripheral(cfg *config.Config) *Peripheral {
	return &Peripheral{cfg: cfg, command: cfg.GetImageCommand}
}

func (p *Peripheral) Open(ctx context.Context, cons capture.Constraints) (capture.Stream, error) {
	cmdName, _, err := p.command("")
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(cmdName); err != nil {
		return nil, fmt.Errorf("camera command %s unavailable: %w", cmdName, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cons.FacingMode != "" {
		// Capture commands pick the attached camera; the preference is soft.
		log.Debug("peripheral: facing mode %q requested, using the attached camera", cons.FacingMode)
	}
	return capture.NewStream(frameInterval(cons, p.cfg.FrameInterval), p.takePicture), nil
}

func (p *Peripheral) Name() string { return "Peripheral" }

// takePicture executes the camera command and decodes the captured file.
func (p *Peripheral) takePicture(ctx context.Context) (image.Image, error) {
	path := filepath.Join(p.cfg.PicturePath, fmt.Sprintf("frame_%d.jpg", time.Now().UnixNano()))
	cmdName, args, err := p.command(path)
	if err != nil {
		return nil, err
	}
	// The command may leave a partial file behind even when it fails.
	defer os.Remove(path)

	cmd := exec.CommandContext(ctx, cmdName, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to run camera command '%s': %w, output: %s", cmdName, err, string(output))
	}

	frames, err := loadFrameFile(path)
	if err != nil {
		return nil, err
	}
	return frames[0], nil
}

// New selects and creates the appropriate hardware implementation based on config.
func New(cfg *config.Config) (Hardware, error) {
	feedback, err := newFeedback(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.HardwareType {
	case config.HWCore:
		c := NewCore(cfg.FrameInterval)
		c.feedback = feedback
		return c, nil
	case config.HWDisk:
		d := newDisk(cfg)
		d.feedback = feedback
		return d, nil
	case config.HWPeripheral:
		p := newPeripheral(cfg)
		p.feedback = feedback
		return p, nil
	default:
		return nil, fmt.Errorf("unknown hardware type specified: %s", cfg.HardwareType)
	}
}

func newFeedback(cfg *config.Config) (haptic.Feedback, error) {
	switch cfg.Haptic {
	case config.HapticNone, "":
		return haptic.None, nil
	case config.HapticBell:
		return haptic.NewBell(os.Stdout), nil
	case config.HapticCommand:
		fields := strings.Fields(cfg.HapticCommand)
		if len(fields) == 0 {
			return nil, fmt.Errorf("empty haptic command")
		}
		return haptic.NewCommand(fields[0], fields[1:]...), nil
	default:
		return nil, fmt.Errorf("unknown haptic mode: %s", cfg.Haptic)
	}
}
