package memory

import (
	"context"
	"sync"
	"time"

	"treasurycontrol/internal/models"
)

// MetricsStore is an in-memory implementation of storage.MetricsStore.
type MetricsStore struct {
	mu sync.Mutex
	m  models.Metrics
}

func NewMetricsStore() *MetricsStore {
	return &MetricsStore{m: models.Metrics{ID: models.MetricsID}}
}

func (s *MetricsStore) Get(_ context.Context) (*models.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.m
	return &out, nil
}

func (s *MetricsStore) AddFeesCollected(_ context.Context, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m.TotalFeesCollected += amount
	s.m.UpdatedAt = time.Now()
	return nil
}

func (s *MetricsStore) Apply(_ context.Context, d models.MetricsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m.TotalCycles += d.Cycles
	s.m.TotalTrades += d.Trades
	s.m.TotalRewardsSent += d.RewardsSent
	s.m.TotalTokensBought += d.TokensBought
	s.m.TotalSolSpent += d.SolSpent
	if d.PriceOK {
		s.m.LastPrice = d.Price
	}
	if !d.CycleAt.IsZero() {
		at := d.CycleAt
		s.m.LastCycleAt = &at
	}
	s.m.UpdatedAt = time.Now()
	return nil
}
