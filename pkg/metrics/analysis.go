package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// StatSummary holds final statistical results for a single set of measurements.
type StatSummary struct {
	Count int
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// AggregatedMetrics holds the collected data for a single metric across all runs.
type AggregatedMetrics struct {
	Component   string
	WallClocks  []time.Duration
	UserTimes   []time.Duration
	SystemTimes []time.Duration
}

// Analyzer collects recorders from several runs.
type Analyzer struct {
	recorders []*Recorder
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Add collects a recorder from a single run.
func (a *Analyzer) Add(recorder *Recorder) {
	a.recorders = append(a.recorders, recorder)
}

// Aggregate merges every recorder's measurements by name.
func (a *Analyzer) Aggregate() map[string]*AggregatedMetrics {
	all := make(map[string]*AggregatedMetrics)
	for _, rec := range a.recorders {
		for _, name := range rec.Names() {
			agg, ok := all[name]
			if !ok {
				agg = &AggregatedMetrics{Component: name}
				all[name] = agg
			}
			for _, m := range rec.Measurements(name) {
				agg.WallClocks = append(agg.WallClocks, m.WallClock)
				agg.UserTimes = append(agg.UserTimes, m.UserTime)
				agg.SystemTimes = append(agg.SystemTimes, m.SystemTime)
			}
		}
	}
	return all
}

// Analyze summarises the wall-clock time of every metric.
func (a *Analyzer) Analyze() map[string]StatSummary {
	summaries := make(map[string]StatSummary)
	for name, agg := range a.Aggregate() {
		summaries[name] = CalculateStats(agg.WallClocks)
	}
	return summaries
}

// Print writes one summary line per metric, sorted by name.
func (a *Analyzer) Print(w io.Writer) {
	summaries := a.Analyze()
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "--- Stage latencies ---")
	for _, name := range names {
		s := summaries[name]
		fmt.Fprintf(w, "%-10s n=%-4d mean=%-10s p50=%-10s p95=%-10s min=%-10s max=%s\n",
			name, s.Count, s.Mean, s.P50, s.P95, s.Min, s.Max)
	}
}

// CalculateStats computes summary stats from a slice of durations.
func CalculateStats(durations []time.Duration) StatSummary {
	if len(durations) == 0 {
		return StatSummary{}
	}

	floats := DurationsToFloats(durations)
	sort.Float64s(floats)
	mmin, mmax := MinMax(durations)

	return StatSummary{
		Count: len(durations),
		Mean:  time.Duration(stat.Mean(floats, nil)) * time.Microsecond,
		P50:   time.Duration(stat.Quantile(0.5, stat.Empirical, floats, nil)) * time.Microsecond,
		P95:   time.Duration(stat.Quantile(0.95, stat.Empirical, floats, nil)) * time.Microsecond,
		Min:   mmin,
		Max:   mmax,
	}
}

// DurationsToFloats converts durations to float64 microseconds.
func DurationsToFloats(d []time.Duration) []float64 {
	floats := make([]float64, len(d))
	for i, v := range d {
		floats[i] = float64(v.Microseconds())
	}
	return floats
}

// MinMax finds the minimum and maximum duration in a slice.
func MinMax(d []time.Duration) (min, max time.Duration) {
	if len(d) == 0 {
		return 0, 0
	}
	min, max = d[0], d[0]
	for _, v := range d[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
