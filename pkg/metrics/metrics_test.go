package metrics

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Observe("Detect", time.Duration(i+1)*time.Millisecond)
		}(i)
	}
	wg.Wait()

	if n := len(r.Measurements("Detect")); n != 10 {
		t.Errorf("expected 10 measurements, got %d", n)
	}

	boom := errors.New("boom")
	if err := r.Record("Verify", func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected the operation error, got %v", err)
	}
	if m := r.Measurements("Verify"); len(m) != 1 || m[0].WallClock < 0 {
		t.Errorf("unexpected Verify measurements %v", m)
	}

	if names := r.Names(); len(names) != 2 || names[0] != "Detect" || names[1] != "Verify" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestCalculateStats(t *testing.T) {
	if s := CalculateStats(nil); s.Count != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}

	var d []time.Duration
	for i := 1; i <= 100; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}
	s := CalculateStats(d)
	if s.Count != 100 {
		t.Errorf("expected 100, got %d", s.Count)
	}
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("unexpected min/max %s/%s", s.Min, s.Max)
	}
	if s.Mean != 50500*time.Microsecond {
		t.Errorf("unexpected mean %s", s.Mean)
	}
	if s.P50 != 50*time.Millisecond || s.P95 != 95*time.Millisecond {
		t.Errorf("unexpected quantiles %s/%s", s.P50, s.P95)
	}
}

func TestAnalyzer(t *testing.T) {
	a := NewAnalyzer()
	for run := 0; run < 3; run++ {
		r := NewRecorder(false)
		r.Observe("Acquire", 10*time.Millisecond)
		r.Observe("Detect", time.Duration(run+1)*time.Millisecond)
		a.Add(r)
	}

	agg := a.Aggregate()
	if len(agg["Acquire"].WallClocks) != 3 || len(agg["Detect"].WallClocks) != 3 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if s := a.Analyze()["Detect"]; s.Min != time.Millisecond || s.Max != 3*time.Millisecond {
		t.Errorf("unexpected Detect summary %+v", s)
	}

	var buf bytes.Buffer
	a.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "Acquire") || strings.Index(out, "Acquire") > strings.Index(out, "Detect") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
