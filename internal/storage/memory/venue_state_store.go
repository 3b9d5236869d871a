package memory

import (
	"context"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// VenueStateStore is an in-memory implementation of storage.VenueStateStore.
type VenueStateStore struct {
	mu   sync.RWMutex
	data map[string]models.VenueState
}

func NewVenueStateStore() *VenueStateStore {
	return &VenueStateStore{data: make(map[string]models.VenueState)}
}

func (s *VenueStateStore) Get(_ context.Context, assetID string) (*models.VenueState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[assetID]
	if !ok {
		return &models.VenueState{AssetID: assetID}, nil
	}
	return &st, nil
}

func (s *VenueStateStore) SetVenue(_ context.Context, assetID, venue string, graduated bool, at time.Time) error {
	if assetID == "" || venue == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.data[assetID]
	st.AssetID = assetID
	st.LastVenue = venue
	st.UpdatedAt = at
	if graduated && st.GraduatedAt == nil {
		gradAt := at
		st.GraduatedAt = &gradAt
	}
	if !graduated {
		st.GraduatedAt = nil
	}
	st.Graduated = graduated
	s.data[assetID] = st
	return nil
}
