// Package metrics tracks operation latencies and reports percentile
// summaries at a fixed sample cadence.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/canakyuz-co/fridayx/internal/logging"
)

// Summary is a latency report over the retained samples.
type Summary struct {
	Label  string
	Count  int
	P50    time.Duration
	P95    time.Duration
	Latest time.Duration
}

// LatencyTracker keeps the most recent samples of one operation.
// It is safe for concurrent use.
type LatencyTracker struct {
	label       string
	reportEvery int
	maxSamples  int
	log         *logging.Logger

	mu       sync.Mutex
	samples  []time.Duration
	recorded uint64
	last     Summary
	onReport func(Summary)
}

// NewLatencyTracker creates a tracker that reports every reportEvery
// samples over at most maxSamples retained samples.
func NewLatencyTracker(label string, reportEvery, maxSamples int, log *logging.Logger) *LatencyTracker {
	if reportEvery <= 0 {
		reportEvery = 20
	}
	if maxSamples <= 0 {
		maxSamples = 200
	}
	if log == nil {
		log = logging.Nop()
	}
	return &LatencyTracker{
		label:       label,
		reportEvery: reportEvery,
		maxSamples:  maxSamples,
		log:         log.WithComponent("metrics"),
		samples:     make([]time.Duration, 0, maxSamples),
	}
}

// OnReport registers fn to receive every summary.
func (t *LatencyTracker) OnReport(fn func(Summary)) {
	t.mu.Lock()
	t.onReport = fn
	t.mu.Unlock()
}

// Record adds a sample. Every reportEvery-th sample produces a summary,
// which is logged and returned with ok set. Negative samples are ignored.
func (t *LatencyTracker) Record(d time.Duration) (Summary, bool) {
	if d < 0 {
		return Summary{}, false
	}

	t.mu.Lock()
	if len(t.samples) == t.maxSamples {
		copy(t.samples, t.samples[1:])
		t.samples = t.samples[:len(t.samples)-1]
	}
	t.samples = append(t.samples, d)
	t.recorded++

	if t.recorded%uint64(t.reportEvery) != 0 {
		t.mu.Unlock()
		return Summary{}, false
	}

	sorted := make([]time.Duration, len(t.samples))
	copy(sorted, t.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s := Summary{
		Label:  t.label,
		Count:  len(sorted),
		P50:    percentile(sorted, 0.5),
		P95:    percentile(sorted, 0.95),
		Latest: d,
	}
	t.last = s
	onReport := t.onReport
	t.mu.Unlock()

	t.log.Info("%s count=%d p50=%s p95=%s latest=%s", s.Label, s.Count, s.P50, s.P95, s.Latest)
	if onReport != nil {
		onReport(s)
	}
	return s, true
}

// Last returns the most recent summary, if any was produced.
func (t *LatencyTracker) Last() (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.last.Count > 0
}

// Since records the time elapsed since start.
func (t *LatencyTracker) Since(start time.Time) {
	t.Record(time.Since(start))
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []time.Duration, ratio float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*ratio)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
