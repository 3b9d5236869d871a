package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/internal/venue"
	"treasurycontrol/pkg/solana"
)

// collectFees claims creator fees and credits the full post-collection balance
// to the fees metric right away, so a later failure cannot lose the credit.
func (o *Orchestrator) collectFees(ctx context.Context, run *cycleRun) error {
	sig, err := o.ledger.CollectFees(ctx)
	if err == nil && sig == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		return stepError(StepCollectFees, err)
	}
	run.outcome.FeeCollectionSignature = sig
	run.result.FeeSignature = sig

	balance, err := o.ledger.GetBalance(ctx, o.cfg.TreasuryAddress)
	if err != nil {
		return stepError(StepFeeBalance, err)
	}
	run.outcome.FeeCollectionAmount = balance
	if o.recorder != nil {
		o.recorder.TreasuryBalance(balance)
	}

	// The collected amount is the whole post-collection balance, not a delta.
	if err := o.stores.Metrics.AddFeesCollected(ctx, balance); err != nil {
		o.stepFailed(run, StepCreditFees, err)
	}

	run.log.WithFields(logrus.Fields{
		"signature": sig,
		"balance":   balance,
	}).Info("fees collected")
	return nil
}

// buy spends the buy budget through the venue router. For a graduated asset half of
// the budget is set aside for liquidity first. Failures here fail the cycle.
func (o *Orchestrator) buy(ctx context.Context, run *cycleRun, split Split) (Split, error) {
	asset := run.result.AssetID

	state, err := o.stores.Venues.Get(ctx, asset)
	if err != nil {
		return split, stepError(StepBuy, fmt.Errorf("%w: %v", venue.ErrVenueSelection, err))
	}
	if state.Graduated {
		split = split.WithLiquidity()
	}
	run.result.Graduated = state.Graduated

	if split.Buy < o.cfg.MinBuySOL {
		return split, stepError(StepBuy, fmt.Errorf("%w: %.9f < %.9f SOL", ErrBuyBelowMinimum, split.Buy, o.cfg.MinBuySOL))
	}

	tokensBefore, beforeErr := o.ledger.GetTokenBalance(ctx, asset, o.cfg.TreasuryAddress)

	policy := o.cfg.Retry
	policy.OnRetry = func(attempt int, err error) {
		run.log.WithFields(logrus.Fields{
			"step":    StepBuy,
			"attempt": attempt,
		}).WithError(err).Warn("buy failed, retrying")
	}
	cycleID := run.cycle.ID
	res, err := venue.Retry(ctx, policy, func(ctx context.Context) (venue.BuyResult, error) {
		return o.buyer.Buy(ctx, venue.BuyRequest{
			AssetID:   asset,
			SolAmount: split.Buy,
			CycleID:   &cycleID,
			System:    true,
		})
	})
	if err != nil {
		if errors.Is(err, venue.ErrBuyUnsettled) {
			run.outcome.BuyAmount = split.Buy
			run.outcome.BuySignature = res.Signature
			run.outcome.BuyVenue = res.Venue
			run.result.BuySignature = res.Signature
			run.result.BuyVenue = res.Venue
		}
		return split, stepError(StepBuy, err)
	}
	if res.Skipped {
		return split, stepError(StepBuy, fmt.Errorf("%w: router skipped %.9f SOL", ErrBuyBelowMinimum, split.Buy))
	}

	run.boughtOK = true
	run.outcome.BuyAmount = split.Buy
	run.outcome.BuySignature = res.Signature
	run.outcome.BuyVenue = res.Venue
	run.result.BuySignature = res.Signature
	run.result.BuyVenue = res.Venue

	tokensAfter, afterErr := o.ledger.GetTokenBalance(ctx, asset, o.cfg.TreasuryAddress)
	if err := errors.Join(beforeErr, afterErr); err != nil {
		run.log.WithField("step", StepTokensBought).WithError(err).Warn("could not measure tokens bought")
	} else {
		run.outcome.TokensBought = math.Max(tokensAfter-tokensBefore, 0)
		run.result.TokensBought = run.outcome.TokensBought
	}

	run.log.WithFields(logrus.Fields{
		"venue":     res.Venue,
		"sol":       split.Buy,
		"tokens":    run.outcome.TokensBought,
		"signature": res.Signature,
	}).Info("buy executed")
	return split, nil
}

// distributeFees sends the platform and reward shares. Each transfer is independent and best effort.
func (o *Orchestrator) distributeFees(ctx context.Context, run *cycleRun, split Split) {
	run.outcome.PlatformFeeAmount = split.PlatformFee
	run.outcome.RewardFeeAmount = split.RewardFee

	run.result.PlatformFee = o.transferShare(ctx, run, StepPlatformFee, o.cfg.PlatformAddress, split.PlatformFee)
	run.outcome.PlatformFeeSignature = run.result.PlatformFee.Signature

	run.result.RewardFee = o.transferShare(ctx, run, StepRewardFee, o.cfg.RewardAddress, split.RewardFee)
	run.outcome.RewardFeeSignature = run.result.RewardFee.Signature
}

func (o *Orchestrator) transferShare(ctx context.Context, run *cycleRun, step, to string, amount float64) *TransferResult {
	res := &TransferResult{Amount: amount}
	if amount <= 0 {
		return res
	}
	if to == "" {
		res.Error = "no destination configured"
		o.stepFailed(run, step, errors.New(res.Error))
		return res
	}

	sig, err := o.ledger.Transfer(ctx, o.cfg.TreasuryAddress, to, amount)
	if err == nil && sig == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		res.Error = err.Error()
		o.stepFailed(run, step, err)
		return res
	}
	res.Signature = sig
	return res
}

// sweepTokens moves the treasury's purchased tokens to the platform wallet.
func (o *Orchestrator) sweepTokens(ctx context.Context, run *cycleRun) {
	if o.cfg.PlatformAddress == "" {
		return
	}
	asset := run.result.AssetID

	balance, err := o.ledger.GetTokenBalance(ctx, asset, o.cfg.TreasuryAddress)
	if err != nil {
		o.stepFailed(run, StepTokenSweep, err)
		return
	}
	if balance <= 0 {
		return
	}

	sig, err := o.ledger.TransferToken(ctx, asset, o.cfg.TreasuryAddress, o.cfg.PlatformAddress, balance)
	if err == nil && sig == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		o.stepFailed(run, StepTokenSweep, err)
		return
	}
	run.outcome.TokenSweepSignature = sig
	run.result.SweepSignature = sig
	run.log.WithFields(logrus.Fields{
		"tokens":    balance,
		"signature": sig,
	}).Info("tokens swept to platform wallet")
}

// addLiquidity deposits the liquidity budget and burns the LP tokens received.
// The outcome is recorded on a LiquidityEvent and never fails the cycle.
func (o *Orchestrator) addLiquidity(ctx context.Context, run *cycleRun, split Split) {
	if split.Liquidity <= 0 {
		return
	}
	res := &LiquidityResult{SolDeposited: split.Liquidity}
	run.result.Liquidity = res
	run.outcome.LiquidityAmount = split.Liquidity

	switch {
	case !o.cfg.LiquidityEnabled:
		res.Skipped, res.Reason = true, "liquidity disabled"
		return
	case split.Liquidity < o.cfg.LiquidityMinSOL:
		res.Skipped, res.Reason = true, fmt.Sprintf("%.9f SOL below minimum %.9f", split.Liquidity, o.cfg.LiquidityMinSOL)
		return
	}

	asset := run.result.AssetID
	pool, err := o.ledger.PoolAddress(ctx, asset)
	if err != nil {
		res.Error = err.Error()
		o.stepFailed(run, StepLiquidity, err)
		return
	}
	res.Pool = pool

	event := &models.LiquidityEvent{
		CycleID:      run.cycle.ID,
		AssetID:      asset,
		PoolKey:      pool,
		SolDeposited: split.Liquidity,
	}
	if err := o.stores.Liquidity.Insert(ctx, event); err != nil {
		res.Error = err.Error()
		o.stepFailed(run, StepLiquidity, fmt.Errorf("record liquidity event: %w", err))
		return
	}
	res.EventID = event.ID

	err = o.depositAndBurn(ctx, event, res)
	if err != nil {
		event.Status = models.LiquidityStatusFailed
		event.ErrorMessage = err.Error()
		res.Error = err.Error()
		o.stepFailed(run, StepLiquidity, err)
	} else {
		event.Status = models.LiquidityStatusCompleted
	}
	run.outcome.LiquiditySignature = event.DepositSignature

	if ferr := o.stores.Liquidity.Finalize(ctx, event); ferr != nil {
		run.log.WithField("step", StepLiquidity).WithError(ferr).Error("failed to finalize liquidity event")
	}
}

func (o *Orchestrator) depositAndBurn(ctx context.Context, event *models.LiquidityEvent, res *LiquidityResult) error {
	dep, err := o.ledger.DepositLiquidity(ctx, event.PoolKey, event.SolDeposited)
	if err == nil && dep.Signature == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		event.DepositSignature = dep.Signature
		return fmt.Errorf("deposit: %w", err)
	}
	event.DepositSignature = dep.Signature
	event.TokensDeposited = dep.TokensDeposited
	event.TokensReceived = dep.LPTokens
	res.Signature = dep.Signature
	res.LPTokens = dep.LPTokens

	burnSig, err := o.ledger.Burn(ctx, event.PoolKey, dep.LPTokens)
	if err == nil && burnSig == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		return fmt.Errorf("burn: %w", err)
	}
	event.BurnSignature = burnSig
	event.LPTokensBurned = dep.LPTokens
	res.BurnSignature = burnSig
	return nil
}

// payReward pays the reward wallet balance, less a fee reserve, to the most recent
// qualifying trader once the randomized trade threshold is met.
func (o *Orchestrator) payReward(ctx context.Context, run *cycleRun) {
	res := &RewardResult{}
	run.result.Reward = res
	skip := func(reason string) {
		res.Skipped, res.Reason = true, reason
		run.log.WithFields(logrus.Fields{"step": StepReward, "reason": reason}).Debug("reward skipped")
	}
	fail := func(err error) {
		res.Error = err.Error()
		o.stepFailed(run, StepReward, err)
	}

	if o.cfg.RewardAddress == "" {
		skip("no reward wallet configured")
		return
	}
	balance, err := o.ledger.GetBalance(ctx, o.cfg.RewardAddress)
	if err != nil {
		fail(fmt.Errorf("reward wallet balance: %w", err))
		return
	}
	if balance <= 0 {
		skip("reward wallet empty")
		return
	}

	state, err := o.threshold.State(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		skip("listener state not initialized")
		return
	}
	if err != nil {
		fail(fmt.Errorf("listener state: %w", err))
		return
	}
	if !state.ThresholdMet() {
		skip(fmt.Sprintf("threshold not met: %d/%d", state.CurrentCount, state.CurrentThreshold))
		return
	}

	exclude := []string{o.cfg.TreasuryAddress, o.cfg.RewardAddress, o.cfg.PlatformAddress}
	trade, err := o.stores.Trades.MostRecentQualifying(ctx, run.result.AssetID, o.cfg.RewardMinTradeSOL, exclude)
	if errors.Is(err, storage.ErrNotFound) {
		skip("no qualifying trader")
		return
	}
	if err != nil {
		fail(fmt.Errorf("find qualifying trade: %w", err))
		return
	}

	amount := balance - o.cfg.RewardFeeReserveSOL
	if amount <= 0 {
		skip("reward wallet balance does not cover the fee reserve")
		return
	}

	// Consume the threshold before any SOL moves.
	threshold, err := o.threshold.Reset(ctx, trade.TraderAddress, state.CurrentCount)
	if err != nil {
		fail(fmt.Errorf("reset listener state: %w", err))
		return
	}

	sig, err := o.ledger.Transfer(ctx, o.cfg.RewardAddress, trade.TraderAddress, amount)
	if err == nil && sig == "" {
		err = solana.ErrNoSignature
	}
	if err != nil {
		err = fmt.Errorf("reward transfer: %w", err)
		if sig != "" || errors.Is(err, solana.ErrUnconfirmed) {
			// the payout may still land, so the threshold stays consumed
			res.Recipient, res.Amount, res.Signature = trade.TraderAddress, amount, sig
			run.outcome.RewardSignature = sig
			fail(err)
			return
		}
		if rerr := o.threshold.Restore(ctx, state); rerr != nil {
			err = fmt.Errorf("%w; restore listener state: %w", err, rerr)
		}
		fail(err)
		return
	}
	res.Recipient = trade.TraderAddress
	res.Amount = amount
	res.Signature = sig
	res.NewThreshold = threshold
	run.rewardAmount = amount
	run.outcome.RewardSignature = sig

	if err := o.stores.Rewards.Insert(ctx, &models.Reward{
		CycleID:          run.cycle.ID,
		RecipientAddress: trade.TraderAddress,
		SolAmount:        amount,
		Signature:        sig,
		SelectionMode:    models.RewardModeLastQualifyingTrader,
	}); err != nil {
		fail(fmt.Errorf("record reward: %w", err))
	}

	run.log.WithFields(logrus.Fields{
		"recipient":     trade.TraderAddress,
		"amount":        amount,
		"signature":     sig,
		"new_threshold": threshold,
	}).Info("reward paid")
}
