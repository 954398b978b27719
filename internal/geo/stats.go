package geo

import (
	"strings"
	"sync"

	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/metrics"
)

// Stats aggregates resolver outcomes for observability. Safe for concurrent
// use; callers export snapshots to logs or metrics on their own schedule.
type Stats struct {
	mu           sync.Mutex
	total        int
	resolved     int
	bySource     map[Source]int
	byConfidence map[Confidence]int
	errors       map[string]int
}

// StatsSnapshot is an immutable copy of the aggregated counters.
type StatsSnapshot struct {
	Total        int                `json:"total"`
	Resolved     int                `json:"resolved"`
	SuccessRate  float64            `json:"success_rate"`
	BySource     map[Source]int     `json:"by_source"`
	ByConfidence map[Confidence]int `json:"by_confidence"`
	Errors       map[string]int     `json:"errors"`
}

// NewStats constructs an empty aggregator.
func NewStats() *Stats {
	return &Stats{
		bySource:     make(map[Source]int),
		byConfidence: make(map[Confidence]int),
		errors:       make(map[string]int),
	}
}

// Record folds a resolution into the counters.
func (s *Stats) Record(res Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.bySource[res.Source]++
	s.byConfidence[res.Confidence]++
	metrics.CoordinateResolutions.WithLabelValues(string(res.Source), string(res.Confidence)).Inc()

	if res.Resolved() {
		s.resolved++
		return
	}
	category := categorizeError(res.Error)
	s.errors[category]++
	metrics.CoordinateFailures.WithLabelValues(category).Inc()
}

// RecordBatch folds a batch of resolutions into the counters.
func (s *Stats) RecordBatch(results []Resolution) {
	for _, res := range results {
		s.Record(res)
	}
}

// Snapshot returns a copy of the counters with the derived success rate.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := StatsSnapshot{
		Total:        s.total,
		Resolved:     s.resolved,
		BySource:     make(map[Source]int, len(s.bySource)),
		ByConfidence: make(map[Confidence]int, len(s.byConfidence)),
		Errors:       make(map[string]int, len(s.errors)),
	}
	if s.total > 0 {
		snapshot.SuccessRate = float64(s.resolved) / float64(s.total)
	}
	for source, count := range s.bySource {
		snapshot.BySource[source] = count
	}
	for confidence, count := range s.byConfidence {
		snapshot.ByConfidence[confidence] = count
	}
	for category, count := range s.errors {
		snapshot.Errors[category] = count
	}
	return snapshot
}

// Reset clears all counters, typically after a snapshot has been exported.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = 0
	s.resolved = 0
	s.bySource = make(map[Source]int)
	s.byConfidence = make(map[Confidence]int)
	s.errors = make(map[string]int)
}

func categorizeError(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "bounds"):
		return "out_of_bounds"
	case strings.Contains(lower, "no location data"):
		return "missing"
	default:
		return "malformed"
	}
}
