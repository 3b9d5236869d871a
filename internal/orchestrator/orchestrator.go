package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/internal/venue"
	"treasurycontrol/pkg/solana"
)

// finalizeTimeout bounds the terminal cycle writes, which run detached from the cycle context.
const finalizeTimeout = 30 * time.Second

// Ledger is the subset of ledger operations a cycle performs besides the buy.
type Ledger interface {
	CollectFees(ctx context.Context) (string, error)
	Transfer(ctx context.Context, from, to string, sol float64) (string, error)
	TransferToken(ctx context.Context, asset, from, to string, amount float64) (string, error)
	PoolAddress(ctx context.Context, asset string) (string, error)
	DepositLiquidity(ctx context.Context, pool string, sol float64) (solana.LiquidityDeposit, error)
	Burn(ctx context.Context, pool string, lpTokens float64) (string, error)
	GetBalance(ctx context.Context, address string) (float64, error)
	GetTokenBalance(ctx context.Context, asset, owner string) (float64, error)
}

// Buyer executes the buy step, normally a *venue.Router.
type Buyer interface {
	Buy(ctx context.Context, req venue.BuyRequest) (venue.BuyResult, error)
}

type PriceFeed interface {
	GetSpotPrice(ctx context.Context, asset string) (float64, error)
}

// ThresholdTracker exposes the reward threshold state machine.
type ThresholdTracker interface {
	State(ctx context.Context) (*models.ListenerState, error)
	Reset(ctx context.Context, winner string, consumed int64) (int64, error)
	Restore(ctx context.Context, prev *models.ListenerState) error
}

// Publisher sends terminal cycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, queue string, message interface{}) error
}

// Recorder receives cycle observations for metrics.
type Recorder interface {
	CycleFinished(status string, duration time.Duration)
	StepFailed(step string)
	TreasuryBalance(sol float64)
}

// Config holds the per-deployment cycle parameters.
type Config struct {
	AssetID         string
	TreasuryAddress string
	RewardAddress   string
	PlatformAddress string

	TxFeeBufferSOL float64
	PlatformFeeBps int
	RewardFeeBps   int
	MinBuySOL      float64
	Retry          venue.RetryPolicy

	LiquidityEnabled bool
	LiquidityMinSOL  float64

	RewardEnabled       bool
	RewardFeeReserveSOL float64
	RewardMinTradeSOL   float64

	// EventsQueue receives a CycleEvent after every terminal cycle when a Publisher is set.
	EventsQueue string
}

// Deps are the collaborators of an Orchestrator. Events and Recorder are optional.
type Deps struct {
	Stores    storage.Stores
	Ledger    Ledger
	Buyer     Buyer
	Prices    PriceFeed
	Threshold ThresholdTracker
	Events    Publisher
	Recorder  Recorder
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Orchestrator runs treasury cycles: collect fees, split, buy, distribute, add liquidity, reward.
type Orchestrator struct {
	cfg       Config
	stores    storage.Stores
	ledger    Ledger
	buyer     Buyer
	prices    PriceFeed
	threshold ThresholdTracker
	events    Publisher
	recorder  Recorder
	log       *logrus.Entry
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	var missing []error
	if deps.Ledger == nil {
		missing = append(missing, errors.New("ledger is required"))
	}
	if deps.Buyer == nil {
		missing = append(missing, errors.New("buyer is required"))
	}
	if deps.Prices == nil {
		missing = append(missing, errors.New("price feed is required"))
	}
	if deps.Stores.Cycles == nil || deps.Stores.Trades == nil || deps.Stores.Liquidity == nil ||
		deps.Stores.Rewards == nil || deps.Stores.Metrics == nil || deps.Stores.Venues == nil {
		missing = append(missing, errors.New("all stores are required"))
	}
	if cfg.RewardEnabled && deps.Threshold == nil {
		missing = append(missing, errors.New("threshold tracker is required when rewards are enabled"))
	}
	if cfg.TreasuryAddress == "" {
		missing = append(missing, errors.New("treasury address is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = venue.DefaultRetryPolicy()
	}

	return &Orchestrator{
		cfg:       cfg,
		stores:    deps.Stores,
		ledger:    deps.Ledger,
		buyer:     deps.Buyer,
		prices:    deps.Prices,
		threshold: deps.Threshold,
		events:    deps.Events,
		recorder:  deps.Recorder,
		log:       deps.Logger.WithField("component", "orchestrator"),
		now:       deps.Now,
	}, nil
}

// TransferResult is the outcome of one fee distribution transfer.
type TransferResult struct {
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// LiquidityResult reports the liquidity step. It never fails the cycle.
type LiquidityResult struct {
	Skipped       bool    `json:"skipped"`
	Reason        string  `json:"reason,omitempty"`
	EventID       uint    `json:"event_id,omitempty"`
	Pool          string  `json:"pool,omitempty"`
	SolDeposited  float64 `json:"sol_deposited"`
	LPTokens      float64 `json:"lp_tokens"`
	Signature     string  `json:"signature,omitempty"`
	BurnSignature string  `json:"burn_signature,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// RewardResult reports the reward step. Domain guards are skips, not errors.
type RewardResult struct {
	Skipped      bool    `json:"skipped"`
	Reason       string  `json:"reason,omitempty"`
	Recipient    string  `json:"recipient,omitempty"`
	Amount       float64 `json:"amount"`
	Signature    string  `json:"signature,omitempty"`
	NewThreshold int64   `json:"new_threshold,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// CycleResult summarises one ExecuteCycle call.
type CycleResult struct {
	CycleID        uint              `json:"cycle_id"`
	AssetID        string            `json:"asset_id"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Graduated      bool              `json:"graduated"`
	Split          Split             `json:"split"`
	FeeSignature   string            `json:"fee_signature,omitempty"`
	BuySignature   string            `json:"buy_signature,omitempty"`
	BuyVenue       string            `json:"buy_venue,omitempty"`
	TokensBought   float64           `json:"tokens_bought"`
	PlatformFee    *TransferResult   `json:"platform_fee,omitempty"`
	RewardFee      *TransferResult   `json:"reward_fee,omitempty"`
	SweepSignature string            `json:"sweep_signature,omitempty"`
	Liquidity      *LiquidityResult  `json:"liquidity,omitempty"`
	Reward         *RewardResult     `json:"reward,omitempty"`
	StepErrors     map[string]string `json:"step_errors,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

// cycleRun is the mutable state of one cycle while it executes.
type cycleRun struct {
	cycle   *models.Cycle
	result  *CycleResult
	outcome models.CycleOutcome
	log     *logrus.Entry

	boughtOK     bool
	rewardAmount float64
}

// stepFailed records a swallowed failure so it is both logged and persisted on the cycle.
func (o *Orchestrator) stepFailed(run *cycleRun, step string, err error) {
	run.log.WithField("step", step).WithError(err).Warn("cycle step failed")
	if run.result.StepErrors == nil {
		run.result.StepErrors = make(map[string]string)
	}
	run.result.StepErrors[step] = err.Error()
	if o.recorder != nil {
		o.recorder.StepFailed(step)
	}
}

// ExecuteCycle runs one cycle for assetID, or for the configured asset when assetID is empty.
// A cycle that fails at balance, fee collection or buy is persisted as failed and its
// StepError is returned together with the result.
func (o *Orchestrator) ExecuteCycle(ctx context.Context, assetID string) (*CycleResult, error) {
	if assetID == "" {
		assetID = o.cfg.AssetID
	}
	if assetID == "" {
		return nil, ErrNoAsset
	}

	start := o.now()
	cycle := &models.Cycle{
		AssetID:         assetID,
		Status:          models.CycleStatusPending,
		StatusUpdatedAt: start,
	}
	if err := o.stores.Cycles.Create(ctx, cycle); err != nil {
		return nil, fmt.Errorf("create cycle: %w", err)
	}

	run := &cycleRun{
		cycle:  cycle,
		result: &CycleResult{CycleID: cycle.ID, AssetID: assetID, Status: models.CycleStatusPending},
		log: o.log.WithFields(logrus.Fields{
			"cycle_id": cycle.ID,
			"asset":    assetID,
		}),
	}
	run.log.Info("cycle started")

	runErr := o.run(ctx, run)

	// The cycle context may have expired mid-step; the terminal writes still have to land.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	o.finalize(finalCtx, run, runErr)
	o.applyMetrics(finalCtx, run)

	run.result.Duration = o.now().Sub(start)
	if o.recorder != nil {
		o.recorder.CycleFinished(run.result.Status, run.result.Duration)
	}
	o.publish(finalCtx, run)

	entry := run.log.WithFields(logrus.Fields{
		"status":   run.result.Status,
		"duration": run.result.Duration.String(),
	})
	if runErr != nil {
		entry.WithError(runErr).Error("cycle failed")
	} else {
		entry.Info("cycle completed")
	}
	return run.result, runErr
}

// run executes the cycle steps in order. Only balance, fee collection and buy failures are returned.
func (o *Orchestrator) run(ctx context.Context, run *cycleRun) error {
	balance, err := o.ledger.GetBalance(ctx, o.cfg.TreasuryAddress)
	if err != nil {
		return stepError(StepBalance, err)
	}
	run.log.WithField("balance", balance).Debug("treasury balance read")

	if err := o.collectFees(ctx, run); err != nil {
		return err
	}

	split := ComputeSplit(run.outcome.FeeCollectionAmount, o.cfg.TxFeeBufferSOL, o.cfg.PlatformFeeBps, o.cfg.RewardFeeBps)
	run.result.Split = split

	split, err = o.buy(ctx, run, split)
	run.result.Split = split
	if err != nil {
		return err
	}

	o.distributeFees(ctx, run, split)
	if !run.result.Graduated {
		o.sweepTokens(ctx, run)
	}
	o.addLiquidity(ctx, run, split)
	if o.cfg.RewardEnabled {
		o.payReward(ctx, run)
	}
	return nil
}

// finalize moves the cycle to its terminal status. The row is never re-opened.
func (o *Orchestrator) finalize(ctx context.Context, run *cycleRun, runErr error) {
	if len(run.result.StepErrors) > 0 {
		run.outcome.StepErrors = make(models.JSONMap, len(run.result.StepErrors))
		for step, msg := range run.result.StepErrors {
			run.outcome.StepErrors[step] = msg
		}
	}

	var err error
	if runErr != nil {
		run.outcome.ErrorMessage = runErr.Error()
		run.result.Status = models.CycleStatusFailed
		run.result.Error = runErr.Error()
		err = o.stores.Cycles.Fail(ctx, run.cycle.ID, run.outcome)
	} else {
		run.result.Status = models.CycleStatusCompleted
		err = o.stores.Cycles.Complete(ctx, run.cycle.ID, run.outcome, o.now())
	}
	if err != nil {
		run.log.WithField("step", StepFinalize).WithError(err).Error("failed to persist cycle outcome")
		if o.recorder != nil {
			o.recorder.StepFailed(StepFinalize)
		}
	}
}

// applyMetrics adds this cycle's contribution to the running totals. Fees were
// already credited at collection time and are not part of the delta.
func (o *Orchestrator) applyMetrics(ctx context.Context, run *cycleRun) {
	delta := models.MetricsDelta{
		Cycles:      1,
		RewardsSent: run.rewardAmount,
		CycleAt:     o.now(),
	}
	if run.boughtOK {
		delta.Trades = 1
		delta.SolSpent = run.outcome.BuyAmount
		delta.TokensBought = run.outcome.TokensBought
	}

	price, err := o.prices.GetSpotPrice(ctx, run.result.AssetID)
	if err != nil {
		run.log.WithError(err).Debug("spot price unavailable, keeping last known price")
	} else {
		delta.Price = price
		delta.PriceOK = true
	}

	if err := o.stores.Metrics.Apply(ctx, delta); err != nil {
		run.log.WithField("step", StepMetrics).WithError(err).Error("failed to update metrics")
		if o.recorder != nil {
			o.recorder.StepFailed(StepMetrics)
		}
	}
}
