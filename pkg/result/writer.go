// Package result writes the scans and latency statistics of a station run
// to CSV files.
package result

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"danfescan/pkg/config"
	"danfescan/pkg/ledger"
	"danfescan/pkg/log"
	"danfescan/pkg/metrics"

	"gonum.org/v1/gonum/stat"
)

// Writer is responsible for creating and writing result files.
type Writer struct {
	resultsPath string
	system      config.SystemType
	hwName      string
	runs        int
	now         func() time.Time
}

// NewWriter creates a new writer for result files.
func NewWriter(resultsPath string, system config.SystemType, hwName string, runs int) *Writer {
	return &Writer{
		resultsPath: resultsPath,
		system:      system,
		hwName:      hwName,
		runs:        runs,
		now:         time.Now,
	}
}

// WriteAllResults writes the scan log, the raw latencies and their
// statistics, and returns the paths written.
func (w *Writer) WriteAllResults(entries []*ledger.Entry, all map[string]*metrics.AggregatedMetrics) ([]string, error) {
	if err := os.MkdirAll(w.resultsPath, 0755); err != nil {
		return nil, fmt.Errorf("could not create results directory %s: %w", w.resultsPath, err)
	}

	var paths []string
	for _, write := range []func() (string, error){
		func() (string, error) { return w.writeScans(entries) },
		func() (string, error) { return w.writeRawResults(all) },
		func() (string, error) { return w.writeStatResults(all) },
	} {
		path, err := write()
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// generateFilename creates a standardized filename for a result file.
// Example: SCANS_SPi_CDisk_R10_T2025-01-02-15-04-05.csv
func (w *Writer) generateFilename(fileType string) string {
	timestamp := w.now().Format("2006-01-02-15-04-05")
	base := fmt.Sprintf("%s_S%s_C%s_R%d_T%s.csv",
		fileType,
		w.system,
		w.hwName,
		w.runs,
		timestamp,
	)
	return filepath.Join(w.resultsPath, base)
}

// writeCSV creates the file for fileType and hands rows to fill.
func (w *Writer) writeCSV(fileType string, header []string, fill func(*csv.Writer) error) (string, error) {
	filePath := w.generateFilename(fileType)
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("could not create %s file %s: %w", fileType, filePath, err)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)
	if err := csvWriter.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header to %s: %w", filePath, err)
	}
	if err := fill(csvWriter); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", filePath, err)
	}
	log.Info("%s results written to %s", fileType, filePath)
	return filePath, nil
}

// writeScans saves every accepted scan in ledger order.
func (w *Writer) writeScans(entries []*ledger.Entry) (string, error) {
	header := []string{"Seq", "Value", "Kind", "ScannedAt"}
	return w.writeCSV("SCANS", header, func(cw *csv.Writer) error {
		for _, e := range entries {
			row := []string{
				strconv.FormatUint(e.Seq, 10),
				e.Value,
				string(e.Kind),
				e.ScannedAt.Format(time.RFC3339Nano),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeRawResults saves every measured stage duration.
func (w *Writer) writeRawResults(all map[string]*metrics.AggregatedMetrics) (string, error) {
	header := []string{"Component", "MetricType", "ExecutionTime_us"}
	return w.writeCSV("RAW", header, func(cw *csv.Writer) error {
		for _, name := range getSortedKeys(all) {
			agg := all[name]
			for _, series := range []struct {
				metricType string
				durations  []time.Duration
			}{
				{"WallClock", agg.WallClocks},
				{"UserTime", agg.UserTimes},
				{"SystemTime", agg.SystemTimes},
			} {
				for _, d := range series.durations {
					if err := cw.Write([]string{name, series.metricType, strconv.FormatInt(d.Microseconds(), 10)}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// writeStatResults calculates and saves wall-clock summary statistics.
func (w *Writer) writeStatResults(all map[string]*metrics.AggregatedMetrics) (string, error) {
	header := []string{"Component", "MetricType", "Count", "Mean_us", "Median_us", "Min_us", "Max_us", "P5_us", "P95_us"}
	return w.writeCSV("STATS", header, func(cw *csv.Writer) error {
		for _, name := range getSortedKeys(all) {
			if err := writeStatsRow(cw, name, "WallClock", all[name].WallClocks); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeStatsRow calculates statistics for a set of durations and writes them to a CSV row.
func writeStatsRow(writer *csv.Writer, component, metricType string, durations []time.Duration) error {
	if len(durations) == 0 {
		return nil
	}

	floats := metrics.DurationsToFloats(durations)
	sort.Float64s(floats)

	mean := stat.Mean(floats, nil)
	median := stat.Quantile(0.5, stat.Empirical, floats, nil)
	p5 := stat.Quantile(0.05, stat.Empirical, floats, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, floats, nil)

	min, max := metrics.MinMax(durations)

	row := []string{
		component,
		metricType,
		strconv.Itoa(len(durations)),
		strconv.FormatFloat(mean, 'f', -1, 64),
		strconv.FormatFloat(median, 'f', -1, 64),
		strconv.FormatInt(min.Microseconds(), 10),
		strconv.FormatInt(max.Microseconds(), 10),
		strconv.FormatFloat(p5, 'f', -1, 64),
		strconv.FormatFloat(p95, 'f', -1, 64),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write stats row for %s (%s): %w", component, metricType, err)
	}
	return nil
}

// getSortedKeys extracts keys from a map and returns them sorted alphabetically.
func getSortedKeys(m map[string]*metrics.AggregatedMetrics) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
