package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// VenueStateStore is the gorm implementation of storage.VenueStateStore.
type VenueStateStore struct {
	db *gorm.DB
}

func NewVenueStateStore(db *gorm.DB) *VenueStateStore {
	return &VenueStateStore{db: db}
}

func (s *VenueStateStore) Get(ctx context.Context, assetID string) (*models.VenueState, error) {
	var st models.VenueState
	err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.VenueState{AssetID: assetID}, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *VenueStateStore) SetVenue(ctx context.Context, assetID, venue string, graduated bool, at time.Time) error {
	if assetID == "" || venue == "" {
		return storage.ErrInvalidInput
	}

	row := models.VenueState{
		AssetID:   assetID,
		Graduated: graduated,
		LastVenue: venue,
		UpdatedAt: at,
	}
	var graduatedAt interface{}
	if graduated {
		row.GraduatedAt = &at
		graduatedAt = gorm.Expr("COALESCE(venue_state.graduated_at, EXCLUDED.graduated_at)")
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "asset_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"graduated":    graduated,
				"last_venue":   venue,
				"graduated_at": graduatedAt,
				"updated_at":   at,
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("set venue state for %s: %w", assetID, translate(err))
	}
	return nil
}
