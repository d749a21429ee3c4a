package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/canakyuz-co/fridayx/internal/logging"
)

func TestPercentile(t *testing.T) {
	ms := func(vals ...int) []time.Duration {
		out := make([]time.Duration, len(vals))
		for i, v := range vals {
			out[i] = time.Duration(v) * time.Millisecond
		}
		return out
	}

	tests := []struct {
		sorted []time.Duration
		ratio  float64
		want   time.Duration
	}{
		{nil, 0.5, 0},
		{ms(7), 0.95, 7 * time.Millisecond},
		{ms(1, 2, 3, 4), 0.5, 2 * time.Millisecond},
		{ms(1, 2, 3, 4), 0.95, 4 * time.Millisecond},
		{ms(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 0.5, 5 * time.Millisecond},
		{ms(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 0.95, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, percentile(tt.sorted, tt.ratio), tt.want)
	}
}

func TestRecordReportsEveryN(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})
	tr := NewLatencyTracker("apply_delta", 4, 100, log)

	var reports []Summary
	tr.OnReport(func(s Summary) { reports = append(reports, s) })

	for i := 1; i <= 8; i++ {
		_, ok := tr.Record(time.Duration(i) * time.Millisecond)
		assert.Equal(t, ok, i%4 == 0)
	}

	assert.Equal(t, len(reports), 2)
	assert.Equal(t, reports[0].Count, 4)
	assert.Equal(t, reports[0].P50, 2*time.Millisecond)
	assert.Equal(t, reports[0].P95, 4*time.Millisecond)
	assert.Equal(t, reports[1].Count, 8)
	assert.Equal(t, reports[1].Latest, 8*time.Millisecond)
	assert.Equal(t, strings.Contains(buf.String(), "apply_delta count=8"), true)

	last, ok := tr.Last()
	assert.Equal(t, ok, true)
	assert.Equal(t, last.Count, 8)
}

func TestRecordKeepsMostRecentSamples(t *testing.T) {
	tr := NewLatencyTracker("save", 5, 3, nil)

	var s Summary
	for i := 1; i <= 5; i++ {
		s, _ = tr.Record(time.Duration(i) * time.Second)
	}
	// Only 3, 4, 5 are retained.
	assert.Equal(t, s.Count, 3)
	assert.Equal(t, s.P50, 4*time.Second)
	assert.Equal(t, s.P95, 5*time.Second)

	_, ok := tr.Record(-time.Second)
	assert.Equal(t, ok, false)
}
