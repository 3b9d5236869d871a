package orchestrator

import "math"

// Split divides a post-collection treasury balance into its budgets, in SOL.
type Split struct {
	Balance     float64 `json:"balance"`
	Buffer      float64 `json:"buffer"`
	Available   float64 `json:"available"`
	PlatformFee float64 `json:"platform_fee"`
	RewardFee   float64 `json:"reward_fee"`
	Buy         float64 `json:"buy"`
	Liquidity   float64 `json:"liquidity"`
}

// ComputeSplit reserves buffer from balance, takes the platform and reward shares
// of the rest in basis points, and leaves the remainder as the buy budget.
// PlatformFee + RewardFee + Buy + Liquidity + reserved buffer always equals Balance
// while Balance covers the buffer.
func ComputeSplit(balance, buffer float64, platformBps, rewardBps int) Split {
	available := math.Max(balance-buffer, 0)
	platform := available * float64(platformBps) / 10000
	reward := available * float64(rewardBps) / 10000
	return Split{
		Balance:     balance,
		Buffer:      buffer,
		Available:   available,
		PlatformFee: platform,
		RewardFee:   reward,
		Buy:         available - platform - reward,
	}
}

// WithLiquidity moves half of the buy budget into the liquidity budget.
func (s Split) WithLiquidity() Split {
	s.Liquidity = s.Buy / 2
	s.Buy -= s.Liquidity
	return s
}
