package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/pkg/solana"
)

// Executor submits a buy on a specific venue.
type Executor interface {
	Buy(ctx context.Context, asset string, sol float64, venue string) (string, error)
}

// Attempt is the outcome of one buy on one venue. Signature accompanies Err when
// the transaction was submitted but not confirmed.
type Attempt struct {
	Venue     string
	Signature string
	Err       error
}

type BuyRequest struct {
	AssetID   string
	SolAmount float64
	CycleID   *uint
	System    bool
}

type BuyResult struct {
	Signature string
	Venue     string
	// Skipped is set when the amount was below the router minimum and nothing was attempted.
	Skipped  bool
	Attempts []Attempt
}

// Router picks a venue from the persisted graduation state and falls back to the other venue once.
type Router struct {
	exec   Executor
	venues storage.VenueStateStore
	trades storage.TradeStore
	minSOL float64
	now    func() time.Time
	log    *logrus.Entry
}

func NewRouter(exec Executor, venues storage.VenueStateStore, trades storage.TradeStore, minSOL float64, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		exec:   exec,
		venues: venues,
		trades: trades,
		minSOL: minSOL,
		now:    time.Now,
		log:    log.WithField("component", "venue_router"),
	}
}

// Order returns the venues to try, preferred first.
func Order(graduated bool) []string {
	if graduated {
		return []string{models.VenueAMM, models.VenueBondingCurve}
	}
	return []string{models.VenueBondingCurve, models.VenueAMM}
}

// Buy routes a buy. Amounts below the minimum are skipped with a nil error.
// A buy that was submitted but not settled stops the fallback and returns
// ErrBuyUnsettled with the result carrying its signature.
func (r *Router) Buy(ctx context.Context, req BuyRequest) (BuyResult, error) {
	if req.SolAmount < r.minSOL {
		return BuyResult{Skipped: true}, nil
	}

	state, err := r.venues.Get(ctx, req.AssetID)
	if err != nil {
		return BuyResult{}, fmt.Errorf("%w: %v", ErrVenueSelection, err)
	}

	var attempts []Attempt
	for _, v := range Order(state.Graduated) {
		a := r.attempt(ctx, req, v)
		attempts = append(attempts, a)
		if a.Err != nil {
			entry := r.log.WithFields(logrus.Fields{
				"asset":     req.AssetID,
				"venue":     v,
				"sol":       req.SolAmount,
				"signature": a.Signature,
			}).WithError(a.Err)
			if unsettled(a) {
				entry.Error("buy submitted but not confirmed, not falling back")
				res := BuyResult{Signature: a.Signature, Venue: a.Venue, Attempts: attempts}
				return res, fmt.Errorf("%w on %s (signature %q): %w", ErrBuyUnsettled, v, a.Signature, a.Err)
			}
			entry.Warn("buy attempt failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.record(ctx, req, a, state)
		return BuyResult{Signature: a.Signature, Venue: a.Venue, Attempts: attempts}, nil
	}
	return BuyResult{Attempts: attempts}, &AttemptsError{Attempts: attempts}
}

func (r *Router) attempt(ctx context.Context, req BuyRequest, venue string) Attempt {
	sig, err := r.exec.Buy(ctx, req.AssetID, req.SolAmount, venue)
	if err == nil && sig == "" {
		err = solana.ErrNoSignature
	}
	return Attempt{Venue: venue, Signature: sig, Err: err}
}

// record writes the trade row and reclassifies the asset when the venue that
// worked disagrees with the stored flag. The buy already landed, so failures are only logged.
func (r *Router) record(ctx context.Context, req BuyRequest, a Attempt, state *models.VenueState) {
	entry := r.log.WithFields(logrus.Fields{
		"asset":     req.AssetID,
		"venue":     a.Venue,
		"signature": a.Signature,
	})

	sol := req.SolAmount
	trade := &models.Trade{
		AssetID:     req.AssetID,
		Signature:   a.Signature,
		Venue:       a.Venue,
		Side:        models.TradeSideBuy,
		SolAmount:   &sol,
		IsSystemBuy: req.System,
		CycleID:     req.CycleID,
	}
	if err := r.trades.Insert(ctx, trade); err != nil {
		entry.WithError(err).Error("failed to record trade")
	}

	graduated := a.Venue == models.VenueAMM
	if graduated == state.Graduated && a.Venue == state.LastVenue {
		return
	}
	if err := r.venues.SetVenue(ctx, req.AssetID, a.Venue, graduated, r.now()); err != nil {
		entry.WithError(err).Error("failed to update venue state")
		return
	}
	if graduated != state.Graduated {
		entry.WithField("graduated", graduated).Info("venue classification changed")
	}
}
