package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// ListenerStateStore is the gorm implementation of storage.ListenerStateStore.
type ListenerStateStore struct {
	db *gorm.DB
}

func NewListenerStateStore(db *gorm.DB) *ListenerStateStore {
	return &ListenerStateStore{db: db}
}

func (s *ListenerStateStore) Get(ctx context.Context) (*models.ListenerState, error) {
	var st models.ListenerState
	if err := s.db.WithContext(ctx).First(&st, models.ListenerStateID).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *ListenerStateStore) Init(ctx context.Context, st *models.ListenerState) (*models.ListenerState, error) {
	if st == nil || st.AssetID == "" || st.CurrentThreshold <= 0 {
		return nil, storage.ErrInvalidInput
	}
	row := *st
	row.ID = models.ListenerStateID
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("init listener state: %w", translate(err))
	}
	return s.Get(ctx)
}

func (s *ListenerStateStore) RecordTrade(ctx context.Context, qualifies bool, at time.Time) (*models.ListenerState, error) {
	updates := map[string]interface{}{
		"last_heartbeat_at":     at,
		"total_trades_observed": gorm.Expr("total_trades_observed + 1"),
	}
	if qualifies {
		updates["current_count"] = gorm.Expr("current_count + 1")
	}

	res := s.db.WithContext(ctx).
		Model(&models.ListenerState{}).
		Where("id = ?", models.ListenerStateID).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("record trade: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, storage.ErrNotFound
	}
	return s.Get(ctx)
}

func (s *ListenerStateStore) Reset(ctx context.Context, threshold, consumed int64, winner string, at time.Time) error {
	if threshold <= 0 || consumed < 0 {
		return storage.ErrInvalidInput
	}
	res := s.db.WithContext(ctx).
		Model(&models.ListenerState{}).
		Where("id = ?", models.ListenerStateID).
		Updates(map[string]interface{}{
			"current_threshold":   threshold,
			"current_count":       gorm.Expr("GREATEST(current_count - ?, 0)", consumed),
			"last_winner_address": winner,
			"last_winner_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("reset listener state: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *ListenerStateStore) Restore(ctx context.Context, prev *models.ListenerState, consumed int64) error {
	if prev == nil || prev.CurrentThreshold <= 0 || consumed < 0 {
		return storage.ErrInvalidInput
	}
	res := s.db.WithContext(ctx).
		Model(&models.ListenerState{}).
		Where("id = ?", models.ListenerStateID).
		Updates(map[string]interface{}{
			"current_threshold":   prev.CurrentThreshold,
			"current_count":       gorm.Expr("current_count + ?", consumed),
			"last_winner_address": prev.LastWinnerAddress,
			"last_winner_at":      prev.LastWinnerAt,
		})
	if res.Error != nil {
		return fmt.Errorf("restore listener state: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
