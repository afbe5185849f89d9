package scoring

import (
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Stats tracks scoring throughput for the /stats endpoint.
type Stats struct {
	mu        sync.Mutex
	total     int64
	escalated int64
	sum       time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	byLevel   map[domain.RiskLevel]int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalProcessed int64                      `json:"total_processed"`
	Escalated      int64                      `json:"escalated"`
	AvgMs          float64                    `json:"avg_processing_time_ms"`
	MinMs          float64                    `json:"min_time_ms"`
	MaxMs          float64                    `json:"max_time_ms"`
	ByRiskLevel    map[domain.RiskLevel]int64 `json:"by_risk_level"`
}

// NewStats creates an empty tracker.
func NewStats() *Stats {
	return &Stats{byLevel: make(map[domain.RiskLevel]int64)}
}

// Record adds one scored claim.
func (s *Stats) Record(level domain.RiskLevel, escalated bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total == 0 || d < s.minTime {
		s.minTime = d
	}
	if d > s.maxTime {
		s.maxTime = d
	}
	s.total++
	s.sum += d
	s.byLevel[level]++
	if escalated {
		s.escalated++
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalProcessed: s.total,
		Escalated:      s.escalated,
		ByRiskLevel:    make(map[domain.RiskLevel]int64, len(s.byLevel)),
	}
	for k, v := range s.byLevel {
		snap.ByRiskLevel[k] = v
	}
	if s.total > 0 {
		snap.AvgMs = ms(s.sum) / float64(s.total)
		snap.MinMs = ms(s.minTime)
		snap.MaxMs = ms(s.maxTime)
	}
	return snap
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
