// Package metrics records stage latencies of scanning sessions and
// summarises them across runs.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"syscall"
	"time"

	"danfescan/pkg/log"
)

// Measurement captures a single performance data point for one operation.
// Observed stages only carry WallClock.
type Measurement struct {
	WallClock  time.Duration
	UserTime   time.Duration
	SystemTime time.Duration
}

// timer captures the state at the beginning of a measurement.
type timer struct {
	name           string
	startTime      time.Time
	startRUsage    syscall.Rusage
	startRChildren syscall.Rusage
}

// Recorder collects measurements by name. It is safe for concurrent use and
// implements session.Observer.
type Recorder struct {
	printDebug bool

	mu      sync.Mutex
	metrics map[string][]Measurement
}

// NewRecorder creates a new, empty recorder.
func NewRecorder(printDebug bool) *Recorder {
	return &Recorder{
		printDebug: printDebug,
		metrics:    make(map[string][]Measurement),
	}
}

// Observe records a wall-clock duration measured elsewhere.
func (r *Recorder) Observe(name string, d time.Duration) {
	r.add(name, Measurement{WallClock: d})
}

// Record wraps a function call, measuring its wall-clock and CPU time.
func (r *Recorder) Record(name string, f func() error) error {
	t, err := start(name)
	if err != nil {
		return fmt.Errorf("could not start timer for '%s': %w", name, err)
	}

	opErr := f()

	// Always stop the timer, even if the operation failed.
	m, err := t.stop()
	if err != nil {
		return fmt.Errorf("could not stop timer for '%s': %w", name, err)
	}
	r.add(name, m)
	return opErr
}

func (r *Recorder) add(name string, m Measurement) {
	r.mu.Lock()
	r.metrics[name] = append(r.metrics[name], m)
	r.mu.Unlock()

	if r.printDebug {
		log.Info("[METRIC: %s] Wall: %s, User: %s, Sys: %s",
			name, m.WallClock, m.UserTime, m.SystemTime)
	}
}

// Measurements returns a copy of the measurements recorded under name.
func (r *Recorder) Measurements(name string) []Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Measurement(nil), r.metrics[name]...)
}

// Names returns the recorded metric names, sorted.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// start captures the initial wall-clock time and resource usage.
func start(name string) (*timer, error) {
	t := &timer{name: name}
	var err error

	t.startRUsage, err = getRUsage(syscall.RUSAGE_SELF)
	if err != nil {
		return nil, err
	}
	t.startRChildren, err = getRUsage(syscall.RUSAGE_CHILDREN)
	if err != nil {
		return nil, err
	}
	// Record wall-clock time last to minimize measurement overhead.
	t.startTime = time.Now()
	return t, nil
}

// stop captures the final time and resource usage and returns the deltas.
func (t *timer) stop() (Measurement, error) {
	// Record wall-clock time first.
	endTime := time.Now()

	endRUsage, err := getRUsage(syscall.RUSAGE_SELF)
	if err != nil {
		return Measurement{}, err
	}
	endRChildren, err := getRUsage(syscall.RUSAGE_CHILDREN)
	if err != nil {
		return Measurement{}, err
	}

	return Measurement{
		WallClock:  endTime.Sub(t.startTime),
		UserTime:   rtimeDifference(t.startRUsage.Utime, endRUsage.Utime) + rtimeDifference(t.startRChildren.Utime, endRChildren.Utime),
		SystemTime: rtimeDifference(t.startRUsage.Stime, endRUsage.Stime) + rtimeDifference(t.startRChildren.Stime, endRChildren.Stime),
	}, nil
}

// --- OS Utilities ---

// getRUsage is a simple wrapper around syscall.Getrusage.
func getRUsage(who int) (syscall.Rusage, error) {
	var rusage syscall.Rusage
	err := syscall.Getrusage(who, &rusage)
	return rusage, err
}

// rtimeDifference calculates the time.Duration between two syscall.Timeval structs.
func rtimeDifference(start, end syscall.Timeval) time.Duration {
	startDuration := time.Duration(start.Sec)*time.Second + time.Duration(start.Usec)*time.Microsecond
	endDuration := time.Duration(end.Sec)*time.Second + time.Duration(end.Usec)*time.Microsecond
	return endDuration - startDuration
}
