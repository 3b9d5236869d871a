// Package memory provides in-memory implementations of the storage interfaces.
// They mirror the postgres semantics and back the unit tests.
package memory

import (
	"sort"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// NewStores returns a fresh, empty set of in-memory stores.
func NewStores() storage.Stores {
	return storage.Stores{
		Cycles:    NewCycleStore(),
		Trades:    NewTradeStore(),
		Liquidity: NewLiquidityEventStore(),
		Rewards:   NewRewardStore(),
		Listener:  NewListenerStateStore(),
		Metrics:   NewMetricsStore(),
		Venues:    NewVenueStateStore(),
	}
}

func limitOf(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// sortTradesNewest orders by created_at DESC, id DESC.
func sortTradesNewest(trades []models.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].CreatedAt.After(trades[j].CreatedAt)
		}
		return trades[i].ID > trades[j].ID
	})
}
