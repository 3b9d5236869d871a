package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAsset is returned before any side effect when no asset was given or configured.
	ErrNoAsset = errors.New("no monitored asset configured")

	// ErrBuyBelowMinimum fails the cycle when the buy budget is under the configured minimum.
	ErrBuyBelowMinimum = errors.New("buy budget below minimum")
)

// Cycle steps, used in error messages, step_errors keys and metrics labels.
const (
	StepBalance      = "balance"
	StepCollectFees  = "collect_fees"
	StepFeeBalance   = "post_collection_balance"
	StepBuy          = "buy"
	StepPlatformFee  = "platform_fee"
	StepRewardFee    = "reward_fee"
	StepTokenSweep   = "token_sweep"
	StepLiquidity    = "liquidity"
	StepReward       = "reward"
	StepMetrics      = "metrics"
	StepFinalize     = "finalize"
	StepCreditFees   = "credit_fees"
	StepTokensBought = "tokens_bought"
)

// StepError is a failure that aborted a cycle at Step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step string, err error) error {
	return &StepError{Step: step, Err: err}
}
