package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu          sync.RWMutex
	nextID      uint
	data        []models.Trade
	bySignature map[string]struct{}
}

func NewTradeStore() *TradeStore {
	return &TradeStore{bySignature: make(map[string]struct{})}
}

func (s *TradeStore) Insert(_ context.Context, t *models.Trade) error {
	if t == nil || t.AssetID == "" || t.Signature == "" {
		return storage.ErrInvalidInput
	}
	if (t.SolAmount == nil) == (t.TokenAmount == nil) {
		return fmt.Errorf("%w: exactly one of sol_amount and token_amount must be set", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySignature[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	s.nextID++
	t.ID = s.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.bySignature[t.Signature] = struct{}{}
	s.data = append(s.data, *t)
	return nil
}

func (s *TradeStore) ListByCycle(_ context.Context, cycleID uint) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Trade
	for _, t := range s.data {
		if t.CycleID != nil && *t.CycleID == cycleID {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *TradeStore) ListRecent(_ context.Context, assetID string, limit int) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Trade
	for _, t := range s.data {
		if t.AssetID == assetID {
			result = append(result, t)
		}
	}
	sortTradesNewest(result)
	if n := limitOf(limit); len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func (s *TradeStore) MostRecentQualifying(_ context.Context, assetID string, minSol float64, exclude []string) (*models.Trade, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, addr := range exclude {
		excluded[addr] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.Trade
	for _, t := range s.data {
		if t.AssetID != assetID || t.IsSystemBuy || t.Side != models.TradeSideBuy {
			continue
		}
		if t.SolAmount == nil || *t.SolAmount < minSol || t.TraderAddress == "" {
			continue
		}
		if _, skip := excluded[t.TraderAddress]; skip {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, storage.ErrNotFound
	}
	sortTradesNewest(candidates)
	winner := candidates[0]
	return &winner, nil
}

func (s *TradeStore) SumSystemBuys(_ context.Context, assetID string) (int64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	var total float64
	for _, t := range s.data {
		if t.AssetID != assetID || !t.IsSystemBuy {
			continue
		}
		count++
		if t.SolAmount != nil {
			total += *t.SolAmount
		}
	}
	return count, total, nil
}
