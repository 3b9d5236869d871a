package memory

import (
	"context"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// ListenerStateStore is an in-memory implementation of storage.ListenerStateStore.
type ListenerStateStore struct {
	mu    sync.Mutex
	state *models.ListenerState
}

func NewListenerStateStore() *ListenerStateStore {
	return &ListenerStateStore{}
}

func (s *ListenerStateStore) Get(_ context.Context) (*models.ListenerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	stateCopy := *s.state
	return &stateCopy, nil
}

func (s *ListenerStateStore) Init(_ context.Context, st *models.ListenerState) (*models.ListenerState, error) {
	if st == nil || st.AssetID == "" || st.CurrentThreshold <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		row := *st
		row.ID = models.ListenerStateID
		row.UpdatedAt = time.Now()
		s.state = &row
	}
	stateCopy := *s.state
	return &stateCopy, nil
}

func (s *ListenerStateStore) RecordTrade(_ context.Context, qualifies bool, at time.Time) (*models.ListenerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	heartbeat := at
	s.state.LastHeartbeatAt = &heartbeat
	s.state.TotalTradesObserved++
	if qualifies {
		s.state.CurrentCount++
	}
	s.state.UpdatedAt = time.Now()
	stateCopy := *s.state
	return &stateCopy, nil
}

func (s *ListenerStateStore) Reset(_ context.Context, threshold, consumed int64, winner string, at time.Time) error {
	if threshold <= 0 || consumed < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return storage.ErrNotFound
	}
	winnerAt := at
	s.state.CurrentThreshold = threshold
	s.state.CurrentCount = max(s.state.CurrentCount-consumed, 0)
	s.state.LastWinnerAddress = winner
	s.state.LastWinnerAt = &winnerAt
	s.state.UpdatedAt = time.Now()
	return nil
}

func (s *ListenerStateStore) Restore(_ context.Context, prev *models.ListenerState, consumed int64) error {
	if prev == nil || prev.CurrentThreshold <= 0 || consumed < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return storage.ErrNotFound
	}
	s.state.CurrentThreshold = prev.CurrentThreshold
	s.state.CurrentCount += consumed
	s.state.LastWinnerAddress = prev.LastWinnerAddress
	s.state.LastWinnerAt = nil
	if prev.LastWinnerAt != nil {
		winnerAt := *prev.LastWinnerAt
		s.state.LastWinnerAt = &winnerAt
	}
	s.state.UpdatedAt = time.Now()
	return nil
}
