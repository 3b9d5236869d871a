package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// TradeStore is the gorm implementation of storage.TradeStore.
type TradeStore struct {
	db *gorm.DB
}

func NewTradeStore(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db}
}

func (s *TradeStore) Insert(ctx context.Context, t *models.Trade) error {
	if t == nil || t.AssetID == "" || t.Signature == "" {
		return storage.ErrInvalidInput
	}
	if (t.SolAmount == nil) == (t.TokenAmount == nil) {
		return fmt.Errorf("%w: exactly one of sol_amount and token_amount must be set", storage.ErrInvalidInput)
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("insert trade %s: %w", t.Signature, translate(err))
	}
	return nil
}

func (s *TradeStore) ListByCycle(ctx context.Context, cycleID uint) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("created_at ASC, id ASC").
		Find(&trades).Error
	return trades, translate(err)
}

func (s *TradeStore) ListRecent(ctx context.Context, assetID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&trades).Error
	return trades, translate(err)
}

func (s *TradeStore) MostRecentQualifying(ctx context.Context, assetID string, minSol float64, exclude []string) (*models.Trade, error) {
	q := s.db.WithContext(ctx).
		Where("asset_id = ? AND is_system_buy = ? AND side = ?", assetID, false, models.TradeSideBuy).
		Where("sol_amount IS NOT NULL AND sol_amount >= ?", minSol).
		Where("trader_address <> ''")
	if len(exclude) > 0 {
		q = q.Where("trader_address NOT IN ?", exclude)
	}

	var t models.Trade
	if err := q.Order("created_at DESC, id DESC").First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *TradeStore) SumSystemBuys(ctx context.Context, assetID string) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("COUNT(*) AS count, COALESCE(SUM(sol_amount), 0) AS total").
		Where("asset_id = ? AND is_system_buy = ?", assetID, true).
		Scan(&row).Error
	if err != nil {
		return 0, 0, translate(err)
	}
	return row.Count, row.Total, nil
}
