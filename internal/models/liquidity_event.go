package models

import (
	"time"
)

// Liquidity event statuses.
const (
	LiquidityStatusPending   = "pending"
	LiquidityStatusCompleted = "completed"
	LiquidityStatusFailed    = "failed"
)

// LiquidityEvent is one deposit + LP burn pair. Created pending, updated once to a terminal status.
type LiquidityEvent struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CycleID          uint      `gorm:"column:cycle_id;not null;index" json:"cycle_id"`
	AssetID          string    `gorm:"column:asset_id;size:64;not null" json:"asset_id"`
	PoolKey          string    `gorm:"column:pool_key;size:64;not null" json:"pool_key"`
	SolDeposited     float64   `gorm:"column:sol_deposited;default:0" json:"sol_deposited"`
	TokensDeposited  float64   `gorm:"column:tokens_deposited;default:0" json:"tokens_deposited"`
	TokensReceived   float64   `gorm:"column:tokens_received;default:0" json:"tokens_received"`
	LPTokensBurned   float64   `gorm:"column:lp_tokens_burned;default:0" json:"lp_tokens_burned"`
	DepositSignature string    `gorm:"column:deposit_signature;size:128;default:''" json:"deposit_signature"`
	BurnSignature    string    `gorm:"column:burn_signature;size:128;default:''" json:"burn_signature"`
	Status           string    `gorm:"column:status;size:16;not null;default:pending" json:"status"`
	ErrorMessage     string    `gorm:"column:error_message;type:text;default:''" json:"error_message"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (LiquidityEvent) TableName() string {
	return "liquidity_events"
}
