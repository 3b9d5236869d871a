// Package leader implements a Postgres lease that elects one active cycle runner per asset.
package leader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"treasurycontrol/internal/models"
)

const DefaultTTL = 10 * time.Minute

// Gate holds a named lease on behalf of one process instance.
type Gate struct {
	db     *gorm.DB
	name   string
	holder string
	ttl    time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

// NewGate returns a gate for lease name with a random holder id.
func NewGate(db *gorm.DB, name string, ttl time.Duration, log *logrus.Entry) (*Gate, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if name == "" {
		return nil, errors.New("lease name is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	holder := uuid.NewString()
	return &Gate{
		db:     db,
		name:   name,
		holder: holder,
		ttl:    ttl,
		now:    time.Now,
		log:    log.WithFields(logrus.Fields{"component": "leader", "lease": name, "holder": holder}),
	}, nil
}

// LeaseName is the per-asset lease name.
func LeaseName(assetID string) string {
	return "treasury-cycle:" + assetID
}

func (g *Gate) Holder() string { return g.holder }

// TryAcquire takes the lease if it is free or expired, or renews it if this gate already holds it.
func (g *Gate) TryAcquire(ctx context.Context) (bool, error) {
	now := g.now()
	lease := models.LeaderLease{
		Name:      g.name,
		Holder:    g.holder,
		ExpiresAt: now.Add(g.ttl),
		UpdatedAt: now,
	}

	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "expires_at", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  "leader_leases.holder = ? OR leader_leases.expires_at < ?",
				Vars: []interface{}{g.holder, now},
			},
		}},
	}).Create(&lease)
	if res.Error != nil {
		return false, fmt.Errorf("acquire lease %s: %w", g.name, res.Error)
	}

	acquired := res.RowsAffected > 0
	if acquired {
		g.log.Debug("lease held")
	} else {
		g.log.Debug("lease held by another instance")
	}
	return acquired, nil
}

// Release drops the lease if this gate holds it.
func (g *Gate) Release(ctx context.Context) error {
	err := g.db.WithContext(ctx).
		Where("name = ? AND holder = ?", g.name, g.holder).
		Delete(&models.LeaderLease{}).Error
	if err != nil {
		return fmt.Errorf("release lease %s: %w", g.name, err)
	}
	return nil
}

// Current returns the lease row, or nil when nobody holds it.
func (g *Gate) Current(ctx context.Context) (*models.LeaderLease, error) {
	var lease models.LeaderLease
	err := g.db.WithContext(ctx).Where("name = ?", g.name).First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}
