package listener

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

// ObservedTrade is one trade on the monitored asset, as seen by a trade source.
type ObservedTrade struct {
	AssetID     string    `json:"asset_id"`
	Signature   string    `json:"signature"`
	Trader      string    `json:"trader"`
	Side        string    `json:"side"`
	SolAmount   float64   `json:"sol_amount"`
	TokenAmount float64   `json:"token_amount"`
	Venue       string    `json:"venue"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observation reports what Observe did with a trade.
type Observation struct {
	Ignored   bool
	Duplicate bool
	System    bool
	Qualified bool
	State     *models.ListenerState
}

// Random draws thresholds. *rand.Rand satisfies it.
type Random interface {
	Int64N(n int64) int64
}

type globalRandom struct{}

func (globalRandom) Int64N(n int64) int64 { return rand.Int64N(n) }

type Config struct {
	AssetID      string
	ThresholdMin int64
	ThresholdMax int64
	MinTradeSOL  float64
	// SystemWallets are never counted toward the threshold.
	SystemWallets []string
}

// Listener counts qualifying trades toward a randomized reward threshold.
type Listener struct {
	cfg    Config
	state  storage.ListenerStateStore
	trades storage.TradeStore
	rnd    Random
	system map[string]struct{}
	now    func() time.Time
	log    *logrus.Entry
}

type Option func(*Listener)

// WithRandom replaces the threshold random source.
func WithRandom(r Random) Option {
	return func(l *Listener) { l.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

func New(cfg Config, state storage.ListenerStateStore, trades storage.TradeStore, log *logrus.Entry, opts ...Option) (*Listener, error) {
	if cfg.AssetID == "" {
		return nil, errors.New("listener asset is required")
	}
	if cfg.ThresholdMin < 1 || cfg.ThresholdMax < cfg.ThresholdMin {
		return nil, fmt.Errorf("invalid threshold range [%d, %d]", cfg.ThresholdMin, cfg.ThresholdMax)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	l := &Listener{
		cfg:    cfg,
		state:  state,
		trades: trades,
		rnd:    globalRandom{},
		system: make(map[string]struct{}, len(cfg.SystemWallets)),
		now:    time.Now,
		log:    log.WithField("component", "listener"),
	}
	for _, w := range cfg.SystemWallets {
		if w != "" {
			l.system[w] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// DrawThreshold returns a threshold drawn uniformly from the inclusive configured range.
func (l *Listener) DrawThreshold() int64 {
	return l.cfg.ThresholdMin + l.rnd.Int64N(l.cfg.ThresholdMax-l.cfg.ThresholdMin+1)
}

// Init creates the listener state with a fresh threshold unless it already exists.
func (l *Listener) Init(ctx context.Context) (*models.ListenerState, error) {
	return l.state.Init(ctx, &models.ListenerState{
		AssetID:          l.cfg.AssetID,
		CurrentThreshold: l.DrawThreshold(),
		MinTradeSol:      l.cfg.MinTradeSOL,
	})
}

// State returns the current listener state.
func (l *Listener) State(ctx context.Context) (*models.ListenerState, error) {
	return l.state.Get(ctx)
}

// Reset redraws the threshold, records winner and consumes the given number of qualifying
// trades from the count. It returns the new threshold.
func (l *Listener) Reset(ctx context.Context, winner string, consumed int64) (int64, error) {
	threshold := l.DrawThreshold()
	if err := l.state.Reset(ctx, threshold, consumed, winner, l.now()); err != nil {
		return 0, err
	}
	l.log.WithFields(logrus.Fields{
		"winner":    winner,
		"threshold": threshold,
		"consumed":  consumed,
	}).Info("reward threshold reset")
	return threshold, nil
}

// Restore reverts a Reset taken from prev, giving back the trades it consumed.
func (l *Listener) Restore(ctx context.Context, prev *models.ListenerState) error {
	if err := l.state.Restore(ctx, prev, prev.CurrentCount); err != nil {
		return err
	}
	l.log.WithField("threshold", prev.CurrentThreshold).Warn("reward threshold restored")
	return nil
}

func (l *Listener) IsSystem(address string) bool {
	_, ok := l.system[address]
	return ok
}

// Observe logs a trade and advances the listener state. A signature that was already
// recorded is ignored entirely. Only user buys of at least MinTradeSOL count toward the threshold.
func (l *Listener) Observe(ctx context.Context, t ObservedTrade) (Observation, error) {
	if t.AssetID != "" && t.AssetID != l.cfg.AssetID {
		return Observation{Ignored: true}, nil
	}
	if t.Signature == "" {
		return Observation{}, fmt.Errorf("%w: trade without signature", storage.ErrInvalidInput)
	}
	side := t.Side
	if side == "" {
		side = models.TradeSideBuy
	}

	system := l.IsSystem(t.Trader)
	row := &models.Trade{
		AssetID:       l.cfg.AssetID,
		Signature:     t.Signature,
		Venue:         t.Venue,
		Side:          side,
		IsSystemBuy:   system && side == models.TradeSideBuy,
		TraderAddress: t.Trader,
	}
	if t.SolAmount > 0 || t.TokenAmount <= 0 {
		sol := t.SolAmount
		row.SolAmount = &sol
	} else {
		tokens := t.TokenAmount
		row.TokenAmount = &tokens
	}
	if err := l.trades.Insert(ctx, row); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return Observation{Duplicate: true}, nil
		}
		return Observation{}, fmt.Errorf("record trade: %w", err)
	}

	qualifies := !system && side == models.TradeSideBuy && t.SolAmount >= l.cfg.MinTradeSOL
	at := t.Timestamp
	if at.IsZero() {
		at = l.now()
	}

	state, err := l.state.RecordTrade(ctx, qualifies, at)
	if errors.Is(err, storage.ErrNotFound) {
		if _, err = l.Init(ctx); err == nil {
			state, err = l.state.RecordTrade(ctx, qualifies, at)
		}
	}
	if err != nil {
		return Observation{}, fmt.Errorf("update listener state: %w", err)
	}

	entry := l.log.WithFields(logrus.Fields{
		"signature": t.Signature,
		"trader":    t.Trader,
		"side":      side,
		"sol":       t.SolAmount,
		"count":     state.CurrentCount,
		"threshold": state.CurrentThreshold,
	})
	if qualifies && state.ThresholdMet() {
		entry.Info("reward threshold met")
	} else {
		entry.Debug("trade observed")
	}
	return Observation{System: system, Qualified: qualifies, State: state}, nil
}
