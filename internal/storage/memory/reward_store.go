package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// RewardStore is an in-memory implementation of storage.RewardStore.
type RewardStore struct {
	mu     sync.RWMutex
	nextID uint
	data   []models.Reward
}

func NewRewardStore() *RewardStore {
	return &RewardStore{}
}

func (s *RewardStore) Insert(_ context.Context, r *models.Reward) error {
	if r == nil || r.CycleID == 0 || r.RecipientAddress == "" || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.data = append(s.data, *r)
	return nil
}

func (s *RewardStore) ListByCycle(_ context.Context, cycleID uint) ([]models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Reward
	for _, r := range s.data {
		if r.CycleID == cycleID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *RewardStore) ListRecent(_ context.Context, limit int) ([]models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]models.Reward(nil), s.data...)
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

func (s *RewardStore) SumSent(_ context.Context) (int64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, r := range s.data {
		total += r.SolAmount
	}
	return int64(len(s.data)), total, nil
}
