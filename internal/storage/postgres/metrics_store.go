package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"treasurycontrol/internal/models"
)

// MetricsStore is the gorm implementation of storage.MetricsStore.
// All writes are in-place additions so concurrent readers never see a lost update.
type MetricsStore struct {
	db *gorm.DB
}

func NewMetricsStore(db *gorm.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

func (s *MetricsStore) ensure(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Metrics{ID: models.MetricsID}).Error
}

func (s *MetricsStore) Get(ctx context.Context) (*models.Metrics, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure metrics row: %w", translate(err))
	}
	var m models.Metrics
	if err := s.db.WithContext(ctx).First(&m, models.MetricsID).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *MetricsStore) AddFeesCollected(ctx context.Context, amount float64) error {
	if err := s.ensure(ctx); err != nil {
		return fmt.Errorf("ensure metrics row: %w", translate(err))
	}
	err := s.db.WithContext(ctx).
		Model(&models.Metrics{}).
		Where("id = ?", models.MetricsID).
		UpdateColumn("total_fees_collected", gorm.Expr("total_fees_collected + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("add fees collected: %w", translate(err))
	}
	return nil
}

func (s *MetricsStore) Apply(ctx context.Context, d models.MetricsDelta) error {
	if err := s.ensure(ctx); err != nil {
		return fmt.Errorf("ensure metrics row: %w", translate(err))
	}

	updates := map[string]interface{}{
		"total_cycles":        gorm.Expr("total_cycles + ?", d.Cycles),
		"total_trades":        gorm.Expr("total_trades + ?", d.Trades),
		"total_rewards_sent":  gorm.Expr("total_rewards_sent + ?", d.RewardsSent),
		"total_tokens_bought": gorm.Expr("total_tokens_bought + ?", d.TokensBought),
		"total_sol_spent":     gorm.Expr("total_sol_spent + ?", d.SolSpent),
	}
	if d.PriceOK {
		updates["last_price"] = d.Price
	}
	if !d.CycleAt.IsZero() {
		updates["last_cycle_at"] = d.CycleAt
	}

	err := s.db.WithContext(ctx).
		Model(&models.Metrics{}).
		Where("id = ?", models.MetricsID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("apply metrics delta: %w", translate(err))
	}
	return nil
}
