package orchestrator

import (
	"context"
	"time"
)

// CycleEvent is published after every terminal cycle.
type CycleEvent struct {
	CycleID      uint              `json:"cycle_id"`
	AssetID      string            `json:"asset_id"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	FeeBalance   float64           `json:"fee_balance"`
	BuyAmount    float64           `json:"buy_amount"`
	BuyVenue     string            `json:"buy_venue,omitempty"`
	BuySignature string            `json:"buy_signature,omitempty"`
	TokensBought float64           `json:"tokens_bought"`
	Reward       *RewardResult     `json:"reward,omitempty"`
	Liquidity    *LiquidityResult  `json:"liquidity,omitempty"`
	StepErrors   map[string]string `json:"step_errors,omitempty"`
	FinishedAt   time.Time         `json:"finished_at"`
}

func (o *Orchestrator) publish(ctx context.Context, run *cycleRun) {
	if o.events == nil || o.cfg.EventsQueue == "" {
		return
	}
	ev := CycleEvent{
		CycleID:      run.result.CycleID,
		AssetID:      run.result.AssetID,
		Status:       run.result.Status,
		Error:        run.result.Error,
		FeeBalance:   run.outcome.FeeCollectionAmount,
		BuyAmount:    run.outcome.BuyAmount,
		BuyVenue:     run.outcome.BuyVenue,
		BuySignature: run.outcome.BuySignature,
		TokensBought: run.outcome.TokensBought,
		Reward:       run.result.Reward,
		Liquidity:    run.result.Liquidity,
		StepErrors:   run.result.StepErrors,
		FinishedAt:   o.now(),
	}
	if err := o.events.Publish(ctx, o.cfg.EventsQueue, ev); err != nil {
		run.log.WithError(err).Warn("failed to publish cycle event")
	}
}
