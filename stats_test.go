package leyline

import (
	"testing"

	"github.com/spf13/afero"
)

func TestHitRatio(t *testing.T) {
	tests := []struct {
		name   string
		hits   int
		misses int
		want   float64
	}{
		{name: "no operations", hits: 0, misses: 0, want: 0.0},
		{name: "all hits", hits: 4, misses: 0, want: 1.0},
		{name: "all misses", hits: 0, misses: 3, want: 0.0},
		{name: "mixed", hits: 3, misses: 1, want: 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStats()
			for range tt.hits {
				stats.RecordHit()
			}
			for range tt.misses {
				stats.RecordMiss()
			}
			if got := stats.HitRatio(); got != tt.want {
				t.Fatalf("HitRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsSnapshotAndReset(t *testing.T) {
	stats := NewStats()
	stats.now = fixedNowFunc

	stats.RecordHit()
	stats.RecordHit()
	stats.RecordMiss()
	stats.AddBytesServed(1024)

	snap := stats.Snapshot()
	if snap.Hits != 2 || snap.Misses != 1 {
		t.Fatalf("Snapshot counters = %d/%d, want 2/1", snap.Hits, snap.Misses)
	}
	if snap.BytesServed != 1024 {
		t.Fatalf("Snapshot bytes served = %d, want 1024", snap.BytesServed)
	}
	if !snap.TakenAt.Equal(fixedNowFunc()) {
		t.Fatalf("Snapshot taken at %v, want %v", snap.TakenAt, fixedNowFunc())
	}

	// Mutating counters after the snapshot must not change it.
	stats.RecordMiss()
	if snap.Misses != 1 {
		t.Fatal("Snapshot changed after counter mutation")
	}

	stats.Reset()
	if stats.HitRatio() != 0.0 {
		t.Fatalf("HitRatio after Reset = %v, want 0.0", stats.HitRatio())
	}
	if after := stats.Snapshot(); after.Hits != 0 || after.Misses != 0 || after.BytesServed != 0 {
		t.Fatalf("Counters not zeroed after Reset: %+v", after)
	}
}

func TestStatsPersistence(t *testing.T) {
	memFs := afero.NewMemMapFs()
	stats := NewStats()
	stats.now = fixedNowFunc
	stats.RecordHit()
	stats.RecordMiss()

	if err := stats.SaveTo(memFs, "/cache/stats.json"); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	snap, err := LoadSnapshot(memFs, "/cache/stats.json")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Hits != 1 || snap.Misses != 1 || snap.HitRatio != 0.5 {
		t.Fatalf("Persisted snapshot = %+v, want 1 hit, 1 miss, 0.5 ratio", snap)
	}
}
