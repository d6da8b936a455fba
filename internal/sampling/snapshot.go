package sampling

import (
	"sync"

	"yamichi77/movement-log-agent/internal/models"
)

// SnapshotStore holds the last observed tracking state for display.
// Process-lifetime only; last write wins.
type SnapshotStore struct {
	mu         sync.RWMutex
	collecting bool
	snapshot   models.TrackingSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshot: models.TrackingSnapshot{Activity: models.ActivityStill},
	}
}

// IsCollecting reports whether tracking is active
func (s *SnapshotStore) IsCollecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collecting
}

// Snapshot returns the current observed state
func (s *SnapshotStore) Snapshot() models.TrackingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *SnapshotStore) SetCollecting(collecting bool) {
	s.mu.Lock()
	s.collecting = collecting
	s.mu.Unlock()
}

func (s *SnapshotStore) UpdateActivity(activity models.ActivityStatus) {
	s.mu.Lock()
	s.snapshot.Activity = activity
	s.mu.Unlock()
}

func (s *SnapshotStore) UpdateLocation(latitude, longitude float64, updatedAt int64, activity models.ActivityStatus) {
	s.mu.Lock()
	s.snapshot = models.TrackingSnapshot{
		Latitude:  &latitude,
		Longitude: &longitude,
		Activity:  activity,
		UpdatedAt: &updatedAt,
	}
	s.mu.Unlock()
}
