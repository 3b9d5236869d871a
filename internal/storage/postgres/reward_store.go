package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// RewardStore is the gorm implementation of storage.RewardStore.
type RewardStore struct {
	db *gorm.DB
}

func NewRewardStore(db *gorm.DB) *RewardStore {
	return &RewardStore{db: db}
}

func (s *RewardStore) Insert(ctx context.Context, r *models.Reward) error {
	if r == nil || r.CycleID == 0 || r.RecipientAddress == "" || r.Signature == "" {
		return storage.ErrInvalidInput
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("insert reward: %w", translate(err))
	}
	return nil
}

func (s *RewardStore) ListByCycle(ctx context.Context, cycleID uint) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.WithContext(ctx).Where("cycle_id = ?", cycleID).Order("id ASC").Find(&rewards).Error
	return rewards, translate(err)
}

func (s *RewardStore) ListRecent(ctx context.Context, limit int) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rewards).Error
	return rewards, translate(err)
}

func (s *RewardStore) SumSent(ctx context.Context) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Reward{}).
		Select("COUNT(*) AS count, COALESCE(SUM(sol_amount), 0) AS total").
		Scan(&row).Error
	if err != nil {
		return 0, 0, translate(err)
	}
	return row.Count, row.Total, nil
}
