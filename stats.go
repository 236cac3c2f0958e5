package leyline

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

// Stats tracks process-wide cache hit/miss counters. Counters are atomic
// so concurrent warming workers can record safely. Reset is explicit;
// counters never roll over implicitly.
type Stats struct {
	hits        atomic.Int64
	misses      atomic.Int64
	bytesServed atomic.Int64
	now         NowFunc
}

// StatsSnapshot is a point-in-time immutable copy of the counters,
// suitable for reporting and optional persistence.
type StatsSnapshot struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	HitRatio    float64   `json:"hit_ratio"`
	BytesServed int64     `json:"bytes_served"`
	TakenAt     time.Time `json:"taken_at"`
}

// NewStats creates a zeroed Stats tracker.
func NewStats() *Stats {
	return &Stats{now: time.Now}
}

// RecordHit increments the hit counter.
func (s *Stats) RecordHit() {
	s.hits.Add(1)
}

// RecordMiss increments the miss counter.
func (s *Stats) RecordMiss() {
	s.misses.Add(1)
}

// AddBytesServed adds n to the total bytes served from cache.
func (s *Stats) AddBytesServed(n int64) {
	s.bytesServed.Add(n)
}

// HitRatio returns hits / (hits + misses) in [0, 1]. When no operations
// have been recorded it returns exactly 0.0, never NaN, so callers need
// no divide-by-zero special-casing.
func (s *Stats) HitRatio() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		HitRatio:    s.HitRatio(),
		BytesServed: s.bytesServed.Load(),
		TakenAt:     s.now(),
	}
}

// Reset zeroes all counters. Used at the start of a measurement window,
// never implicitly.
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.bytesServed.Store(0)
}

// SaveTo persists a snapshot as JSON at path, atomically.
func (s *Stats) SaveTo(fs afero.Fs, path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := writeFileAtomic(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

// LoadSnapshot reads a previously persisted snapshot from path.
func LoadSnapshot(fs afero.Fs, path string) (StatsSnapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("failed to read stats: %w", err)
	}
	var snap StatsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return StatsSnapshot{}, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return snap, nil
}
