package storage

import (
	"context"
	"time"

	"treasurycontrol/internal/models"
)

// CycleStore persists one row per orchestrator run.
type CycleStore interface {
	// Create inserts a new cycle in pending status and sets its ID.
	Create(ctx context.Context, c *models.Cycle) error

	// GetByID returns ErrNotFound if the cycle does not exist.
	GetByID(ctx context.Context, id uint) (*models.Cycle, error)

	// ListRecent returns the most recent cycles, newest first.
	ListRecent(ctx context.Context, limit int) ([]models.Cycle, error)

	// Complete moves a pending cycle to completed and stamps executed_at.
	// Returns ErrTerminalStatus if the cycle is not pending.
	Complete(ctx context.Context, id uint, outcome models.CycleOutcome, executedAt time.Time) error

	// Fail moves a pending cycle to failed. Returns ErrTerminalStatus if the cycle is not pending.
	Fail(ctx context.Context, id uint, outcome models.CycleOutcome) error

	// CountByStatus returns the number of cycles per status.
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// TradeStore is an append-only log of buys and sells.
type TradeStore interface {
	// Insert returns ErrDuplicateKey if the signature was already recorded.
	Insert(ctx context.Context, t *models.Trade) error

	// ListByCycle returns the trades linked to a cycle, oldest first.
	ListByCycle(ctx context.Context, cycleID uint) ([]models.Trade, error)

	// ListRecent returns the most recent trades for an asset, newest first.
	ListRecent(ctx context.Context, assetID string, limit int) ([]models.Trade, error)

	// MostRecentQualifying returns the newest non-system buy of at least minSol
	// whose trader is not in exclude. Returns ErrNotFound if none exists.
	MostRecentQualifying(ctx context.Context, assetID string, minSol float64, exclude []string) (*models.Trade, error)

	// SumSystemBuys returns the number of system buys and the SOL they spent.
	SumSystemBuys(ctx context.Context, assetID string) (int64, float64, error)
}

// LiquidityEventStore logs deposit + burn pairs.
type LiquidityEventStore interface {
	// Insert records a new pending event and sets its ID.
	Insert(ctx context.Context, e *models.LiquidityEvent) error

	// Finalize writes the terminal status and result fields of a pending event.
	// Returns ErrTerminalStatus if the event already reached a terminal status.
	Finalize(ctx context.Context, e *models.LiquidityEvent) error

	// ListByCycle returns the events linked to a cycle.
	ListByCycle(ctx context.Context, cycleID uint) ([]models.LiquidityEvent, error)
}

// RewardStore is an append-only log of payouts.
type RewardStore interface {
	Insert(ctx context.Context, r *models.Reward) error
	ListByCycle(ctx context.Context, cycleID uint) ([]models.Reward, error)
	ListRecent(ctx context.Context, limit int) ([]models.Reward, error)

	// SumSent returns the number of payouts and their SOL total.
	SumSent(ctx context.Context) (int64, float64, error)
}

// ListenerStateStore persists the singleton listener state.
type ListenerStateStore interface {
	// Get returns ErrNotFound until Init has been called.
	Get(ctx context.Context) (*models.ListenerState, error)

	// Init inserts the singleton row if it does not exist yet and returns the stored row.
	Init(ctx context.Context, s *models.ListenerState) (*models.ListenerState, error)

	// RecordTrade advances the heartbeat and trade total, and the qualifying count when qualifies is set.
	RecordTrade(ctx context.Context, qualifies bool, at time.Time) (*models.ListenerState, error)

	// Reset stores a fresh threshold, records the winner and takes consumed off the count,
	// never going below zero. Trades recorded after consumed was read stay counted.
	Reset(ctx context.Context, threshold, consumed int64, winner string, at time.Time) error

	// Restore undoes a Reset: prev's threshold and winner come back and consumed is added
	// back onto the count.
	Restore(ctx context.Context, prev *models.ListenerState, consumed int64) error
}

// MetricsStore persists the singleton running totals.
type MetricsStore interface {
	// Get returns the totals, all zero if nothing was recorded yet.
	Get(ctx context.Context) (*models.Metrics, error)

	// AddFeesCollected credits collected fees immediately, independent of the cycle outcome.
	AddFeesCollected(ctx context.Context, amount float64) error

	// Apply adds one cycle's contribution to the totals.
	Apply(ctx context.Context, delta models.MetricsDelta) error
}

// VenueStateStore persists per-asset venue classification.
type VenueStateStore interface {
	// Get returns the stored state, or a non-graduated default when none exists.
	Get(ctx context.Context, assetID string) (*models.VenueState, error)

	// SetVenue records the venue last used and the resulting graduated flag.
	SetVenue(ctx context.Context, assetID, venue string, graduated bool, at time.Time) error
}

// Stores bundles every store the orchestrator and its collaborators need.
type Stores struct {
	Cycles    CycleStore
	Trades    TradeStore
	Liquidity LiquidityEventStore
	Rewards   RewardStore
	Listener  ListenerStateStore
	Metrics   MetricsStore
	Venues    VenueStateStore
}
