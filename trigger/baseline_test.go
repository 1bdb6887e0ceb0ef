package trigger

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestBaselineThresholdInsufficientData(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", 5*time.Minute)

	if got := b.Threshold(now); got != 0 {
		t.Fatalf("empty baseline Threshold = %v, want 0", got)
	}
	b.AddSample(10, now)
	if got := b.Threshold(now); got != 0 {
		t.Fatalf("single-sample Threshold = %v, want 0", got)
	}
	if b.IsSpike(1000, now) {
		t.Error("IsSpike must be false while there is no threshold")
	}
}

func TestBaselineIdenticalSamples(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", 5*time.Minute)
	b.AddSample(5, now)
	b.AddSample(5, now.Add(time.Second))

	at := now.Add(2 * time.Second)
	if got := b.Threshold(at); got != 5 {
		t.Fatalf("Threshold with zero variance = %v, want 5 (the mean)", got)
	}
	if b.IsSpike(5, at) {
		t.Error("value equal to threshold must not be a spike")
	}
	if !b.IsSpike(5.01, at) {
		t.Error("value above threshold must be a spike")
	}
}

func TestBaselineThresholdFormula(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", 5*time.Minute)
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	for i, v := range values {
		b.AddSample(v, now.Add(time.Duration(i)*time.Second))
	}
	at := now.Add(10 * time.Second)

	// mean 5, sample stddev sqrt(32/7)
	want := 5 + 2*math.Sqrt(32.0/7.0)
	if got := b.Threshold(at); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Threshold = %v, want %v", got, want)
	}
}

func TestBaselinePruning(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", time.Minute)
	b.AddSample(100, now)
	b.AddSample(100, now.Add(time.Second))

	// Both samples fall out of the horizon; back to insufficient data.
	later := now.Add(2 * time.Minute)
	if got := b.Threshold(later); got != 0 {
		t.Fatalf("Threshold after pruning = %v, want 0", got)
	}
}

type fakeSnapshotStore struct {
	saved map[string]BaselineSnapshot
	load  BaselineSnapshot
	found bool
}

func (s *fakeSnapshotStore) SaveBaseline(ctx context.Context, channelID string, snap BaselineSnapshot) error {
	if s.saved == nil {
		s.saved = make(map[string]BaselineSnapshot)
	}
	s.saved[channelID] = snap
	return nil
}

func (s *fakeSnapshotStore) LoadBaseline(ctx context.Context, channelID string) (BaselineSnapshot, bool, error) {
	return s.load, s.found, nil
}

func TestBaselinePersistAndSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", 5*time.Minute)
	b.AddSample(3, now)
	b.AddSample(5, now.Add(time.Second))

	store := &fakeSnapshotStore{}
	if err := b.Persist(context.Background(), store, now.Add(2*time.Second)); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	snap, ok := store.saved["123"]
	if !ok {
		t.Fatal("snapshot not saved")
	}
	if snap.Mean != 4 || snap.Count != 2 {
		t.Errorf("snapshot = %+v, want mean 4 count 2", snap)
	}
}

func TestBaselinePersistSkipsEmpty(t *testing.T) {
	b := NewBaseline("123", 5*time.Minute)
	store := &fakeSnapshotStore{}
	if err := b.Persist(context.Background(), store, time.Now()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(store.saved) != 0 {
		t.Error("empty baseline must not save a snapshot")
	}
}

func TestBaselineRestoreIsAdvisoryOnly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBaseline("123", 5*time.Minute)
	store := &fakeSnapshotStore{
		load:  BaselineSnapshot{Mean: 50, Stddev: 10, Count: 300, SavedAt: now.Add(-time.Hour)},
		found: true,
	}
	b.RestoreHint(context.Background(), store)

	// The restored summary never seeds samples; detection starts cold.
	if got := b.Threshold(now); got != 0 {
		t.Fatalf("Threshold after restore = %v, want 0", got)
	}
}
