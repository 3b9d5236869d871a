package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// CycleStore is the gorm implementation of storage.CycleStore.
type CycleStore struct {
	db *gorm.DB
}

func NewCycleStore(db *gorm.DB) *CycleStore {
	return &CycleStore{db: db}
}

func (s *CycleStore) Create(ctx context.Context, c *models.Cycle) error {
	if c == nil || c.AssetID == "" {
		return storage.ErrInvalidInput
	}
	c.Status = models.CycleStatusPending
	if c.StatusUpdatedAt.IsZero() {
		c.StatusUpdatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create cycle: %w", translate(err))
	}
	return nil
}

func (s *CycleStore) GetByID(ctx context.Context, id uint) (*models.Cycle, error) {
	var c models.Cycle
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]models.Cycle, error) {
	var cycles []models.Cycle
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&cycles).Error
	return cycles, translate(err)
}

func (s *CycleStore) Complete(ctx context.Context, id uint, outcome models.CycleOutcome, executedAt time.Time) error {
	cols := outcome.Columns()
	cols["status"] = models.CycleStatusCompleted
	cols["status_updated_at"] = time.Now()
	cols["executed_at"] = executedAt
	return s.finish(ctx, id, cols)
}

func (s *CycleStore) Fail(ctx context.Context, id uint, outcome models.CycleOutcome) error {
	cols := outcome.Columns()
	cols["status"] = models.CycleStatusFailed
	cols["status_updated_at"] = time.Now()
	return s.finish(ctx, id, cols)
}

// finish applies a terminal transition guarded on the pending status.
func (s *CycleStore) finish(ctx context.Context, id uint, cols map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&models.Cycle{}).
		Where("id = ? AND status = ?", id, models.CycleStatusPending).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("finish cycle %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return storage.ErrTerminalStatus
	}
	return nil
}

func (s *CycleStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Cycle{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
