package handlers

import (
	"treasurycontrol/internal/models"
)

// CycleDetail is a cycle with its linked trade, liquidity and reward rows.
type CycleDetail struct {
	Cycle           *models.Cycle           `json:"cycle"`
	Trades          []models.Trade          `json:"trades"`
	LiquidityEvents []models.LiquidityEvent `json:"liquidity_events"`
	Rewards         []models.Reward         `json:"rewards"`
}

type MetricsSummary struct {
	Metrics        *models.Metrics  `json:"metrics"`
	CyclesByStatus map[string]int64 `json:"cycles_by_status"`
}

type ListenerView struct {
	*models.ListenerState
	ThresholdMet bool `json:"threshold_met"`
}

// ReconcileReport puts totals recomputed from the logs next to the running metrics.
type ReconcileReport struct {
	AssetID        string           `json:"asset_id"`
	Metrics        *models.Metrics  `json:"metrics"`
	CyclesByStatus map[string]int64 `json:"cycles_by_status"`
	SystemBuys     int64            `json:"system_buys"`
	SystemBuySOL   float64          `json:"system_buy_sol"`
	RewardCount    int64            `json:"reward_count"`
	RewardSOL      float64          `json:"reward_sol"`
	CyclesMatch    bool             `json:"cycles_match"`
	TradesMatch    bool             `json:"trades_match"`
	RewardsMatch   bool             `json:"rewards_match"`
}
