package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// LiquidityEventStore is an in-memory implementation of storage.LiquidityEventStore.
type LiquidityEventStore struct {
	mu     sync.RWMutex
	nextID uint
	data   []*models.LiquidityEvent
}

func NewLiquidityEventStore() *LiquidityEventStore {
	return &LiquidityEventStore{}
}

func (s *LiquidityEventStore) Insert(_ context.Context, e *models.LiquidityEvent) error {
	if e == nil || e.CycleID == 0 || e.PoolKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	e.ID = s.nextID
	e.Status = models.LiquidityStatusPending
	e.CreatedAt = now
	e.UpdatedAt = now
	eventCopy := *e
	s.data = append(s.data, &eventCopy)
	return nil
}

func (s *LiquidityEventStore) Finalize(_ context.Context, e *models.LiquidityEvent) error {
	if e == nil || e.ID == 0 {
		return storage.ErrInvalidInput
	}
	if e.Status != models.LiquidityStatusCompleted && e.Status != models.LiquidityStatusFailed {
		return fmt.Errorf("%w: liquidity event status %q is not terminal", storage.ErrInvalidInput, e.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ID != e.ID {
			continue
		}
		if existing.Status != models.LiquidityStatusPending {
			return storage.ErrTerminalStatus
		}
		existing.SolDeposited = e.SolDeposited
		existing.TokensDeposited = e.TokensDeposited
		existing.TokensReceived = e.TokensReceived
		existing.LPTokensBurned = e.LPTokensBurned
		existing.DepositSignature = e.DepositSignature
		existing.BurnSignature = e.BurnSignature
		existing.Status = e.Status
		existing.ErrorMessage = e.ErrorMessage
		existing.UpdatedAt = time.Now()
		return nil
	}
	return storage.ErrNotFound
}

func (s *LiquidityEventStore) ListByCycle(_ context.Context, cycleID uint) ([]models.LiquidityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.LiquidityEvent
	for _, e := range s.data {
		if e.CycleID == cycleID {
			result = append(result, *e)
		}
	}
	return result, nil
}
