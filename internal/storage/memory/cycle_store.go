package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// CycleStore is an in-memory implementation of storage.CycleStore.
type CycleStore struct {
	mu     sync.RWMutex
	nextID uint
	data   map[uint]*models.Cycle
}

func NewCycleStore() *CycleStore {
	return &CycleStore{data: make(map[uint]*models.Cycle)}
}

func (s *CycleStore) Create(_ context.Context, c *models.Cycle) error {
	if c == nil || c.AssetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	c.ID = s.nextID
	c.Status = models.CycleStatusPending
	if c.StatusUpdatedAt.IsZero() {
		c.StatusUpdatedAt = now
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	cycleCopy := *c
	s.data[c.ID] = &cycleCopy
	return nil
}

func (s *CycleStore) GetByID(_ context.Context, id uint) (*models.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cycleCopy := *c
	return &cycleCopy, nil
}

func (s *CycleStore) ListRecent(_ context.Context, limit int) ([]models.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Cycle, 0, len(s.data))
	for _, c := range s.data {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if n := limitOf(limit); len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func (s *CycleStore) Complete(_ context.Context, id uint, outcome models.CycleOutcome, executedAt time.Time) error {
	return s.finish(id, func(c *models.Cycle) {
		outcome.Apply(c)
		c.Status = models.CycleStatusCompleted
		at := executedAt
		c.ExecutedAt = &at
	})
}

func (s *CycleStore) Fail(_ context.Context, id uint, outcome models.CycleOutcome) error {
	return s.finish(id, func(c *models.Cycle) {
		outcome.Apply(c)
		c.Status = models.CycleStatusFailed
	})
}

func (s *CycleStore) finish(id uint, apply func(c *models.Cycle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if c.IsTerminal() {
		return storage.ErrTerminalStatus
	}
	apply(c)
	c.StatusUpdatedAt = time.Now()
	return nil
}

func (s *CycleStore) CountByStatus(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	for _, c := range s.data {
		out[c.Status]++
	}
	return out, nil
}
