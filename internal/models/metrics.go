package models

import (
	"time"
)

// MetricsID is the primary key of the singleton metrics row.
const MetricsID = 1

// Metrics holds running totals across all cycles.
type Metrics struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	TotalCycles        int64      `gorm:"column:total_cycles;default:0" json:"total_cycles"`
	TotalFeesCollected float64    `gorm:"column:total_fees_collected;default:0" json:"total_fees_collected"`
	TotalTrades        int64      `gorm:"column:total_trades;default:0" json:"total_trades"`
	TotalRewardsSent   float64    `gorm:"column:total_rewards_sent;default:0" json:"total_rewards_sent"`
	TotalTokensBought  float64    `gorm:"column:total_tokens_bought;default:0" json:"total_tokens_bought"`
	TotalSolSpent      float64    `gorm:"column:total_sol_spent;default:0" json:"total_sol_spent"`
	LastPrice          float64    `gorm:"column:last_price;default:0" json:"last_price"`
	LastCycleAt        *time.Time `gorm:"column:last_cycle_at" json:"last_cycle_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Metrics) TableName() string {
	return "metrics"
}

// MetricsDelta is one cycle's contribution to the running totals.
// Fees are credited separately, as soon as they are collected.
type MetricsDelta struct {
	Cycles       int64
	Trades       int64
	RewardsSent  float64
	TokensBought float64
	SolSpent     float64
	// Price is applied only when PriceOK is set; otherwise the last known price is kept.
	Price   float64
	PriceOK bool
	CycleAt time.Time
}
