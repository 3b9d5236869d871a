package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// LiquidityEventStore is the gorm implementation of storage.LiquidityEventStore.
type LiquidityEventStore struct {
	db *gorm.DB
}

func NewLiquidityEventStore(db *gorm.DB) *LiquidityEventStore {
	return &LiquidityEventStore{db: db}
}

func (s *LiquidityEventStore) Insert(ctx context.Context, e *models.LiquidityEvent) error {
	if e == nil || e.CycleID == 0 || e.PoolKey == "" {
		return storage.ErrInvalidInput
	}
	e.Status = models.LiquidityStatusPending
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("insert liquidity event: %w", translate(err))
	}
	return nil
}

func (s *LiquidityEventStore) Finalize(ctx context.Context, e *models.LiquidityEvent) error {
	if e == nil || e.ID == 0 {
		return storage.ErrInvalidInput
	}
	if e.Status != models.LiquidityStatusCompleted && e.Status != models.LiquidityStatusFailed {
		return fmt.Errorf("%w: liquidity event status %q is not terminal", storage.ErrInvalidInput, e.Status)
	}

	res := s.db.WithContext(ctx).
		Model(&models.LiquidityEvent{}).
		Where("id = ? AND status = ?", e.ID, models.LiquidityStatusPending).
		Updates(map[string]interface{}{
			"sol_deposited":     e.SolDeposited,
			"tokens_deposited":  e.TokensDeposited,
			"tokens_received":   e.TokensReceived,
			"lp_tokens_burned":  e.LPTokensBurned,
			"deposit_signature": e.DepositSignature,
			"burn_signature":    e.BurnSignature,
			"status":            e.Status,
			"error_message":     e.ErrorMessage,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize liquidity event %d: %w", e.ID, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		var existing models.LiquidityEvent
		if err := s.db.WithContext(ctx).First(&existing, e.ID).Error; err != nil {
			return translate(err)
		}
		return storage.ErrTerminalStatus
	}
	return nil
}

func (s *LiquidityEventStore) ListByCycle(ctx context.Context, cycleID uint) ([]models.LiquidityEvent, error) {
	var events []models.LiquidityEvent
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("id ASC").
		Find(&events).Error
	return events, translate(err)
}
