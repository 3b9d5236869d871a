// Package postgres implements the storage interfaces on gorm + PostgreSQL.
package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"treasurycontrol/internal/storage"
)

// NewStores wires every gorm-backed store onto one database handle.
func NewStores(db *gorm.DB) storage.Stores {
	return storage.Stores{
		Cycles:    NewCycleStore(db),
		Trades:    NewTradeStore(db),
		Liquidity: NewLiquidityEventStore(db),
		Rewards:   NewRewardStore(db),
		Listener:  NewListenerStateStore(db),
		Metrics:   NewMetricsStore(db),
		Venues:    NewVenueStateStore(db),
	}
}

// translate maps gorm errors onto storage sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "SQLSTATE 23505"):
		return storage.ErrDuplicateKey
	default:
		return err
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
