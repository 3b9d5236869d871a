package models

import (
	"time"
)

// Cycle statuses. A cycle only ever moves pending -> completed or pending -> failed.
const (
	CycleStatusPending   = "pending"
	CycleStatusCompleted = "completed"
	CycleStatusFailed    = "failed"
)

// Cycle is one orchestrator run for one monitored asset.
type Cycle struct {
	ID                     uint       `gorm:"primarykey" json:"id"`
	AssetID                string     `gorm:"column:asset_id;size:64;not null;index" json:"asset_id"`
	Status                 string     `gorm:"column:status;size:16;not null;default:pending" json:"status"`
	StatusUpdatedAt        time.Time  `gorm:"column:status_updated_at;not null" json:"status_updated_at"`
	ExecutedAt             *time.Time `gorm:"column:executed_at" json:"executed_at"`
	FeeCollectionAmount    float64    `gorm:"column:fee_collection_amount;default:0" json:"fee_collection_amount"`
	FeeCollectionSignature string     `gorm:"column:fee_collection_signature;size:128;default:''" json:"fee_collection_signature"`
	BuyAmount              float64    `gorm:"column:buy_amount;default:0" json:"buy_amount"`
	BuySignature           string     `gorm:"column:buy_signature;size:128;default:''" json:"buy_signature"`
	BuyVenue               string     `gorm:"column:buy_venue;size:32;default:''" json:"buy_venue"`
	TokensBought           float64    `gorm:"column:tokens_bought;default:0" json:"tokens_bought"`
	PlatformFeeAmount      float64    `gorm:"column:platform_fee_amount;default:0" json:"platform_fee_amount"`
	PlatformFeeSignature   string     `gorm:"column:platform_fee_signature;size:128;default:''" json:"platform_fee_signature"`
	RewardFeeAmount        float64    `gorm:"column:reward_fee_amount;default:0" json:"reward_fee_amount"`
	RewardFeeSignature     string     `gorm:"column:reward_fee_signature;size:128;default:''" json:"reward_fee_signature"`
	TokenSweepSignature    string     `gorm:"column:token_sweep_signature;size:128;default:''" json:"token_sweep_signature"`
	LiquidityAmount        float64    `gorm:"column:liquidity_amount;default:0" json:"liquidity_amount"`
	LiquiditySignature     string     `gorm:"column:liquidity_signature;size:128;default:''" json:"liquidity_signature"`
	RewardSignature        string     `gorm:"column:reward_signature;size:128;default:''" json:"reward_signature"`
	StepErrors             JSONMap    `gorm:"column:step_errors;type:jsonb" json:"step_errors"`
	ErrorMessage           string     `gorm:"column:error_message;type:text;default:''" json:"error_message"`
	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Cycle) TableName() string {
	return "cycles"
}

// IsTerminal reports whether the cycle has reached completed or failed.
func (c *Cycle) IsTerminal() bool {
	return c.Status == CycleStatusCompleted || c.Status == CycleStatusFailed
}

// CycleOutcome carries the step fields written when a cycle reaches a terminal status.
type CycleOutcome struct {
	FeeCollectionAmount    float64
	FeeCollectionSignature string
	BuyAmount              float64
	BuySignature           string
	BuyVenue               string
	TokensBought           float64
	PlatformFeeAmount      float64
	PlatformFeeSignature   string
	RewardFeeAmount        float64
	RewardFeeSignature     string
	TokenSweepSignature    string
	LiquidityAmount        float64
	LiquiditySignature     string
	RewardSignature        string
	StepErrors             JSONMap
	ErrorMessage           string
}

// Apply copies the outcome onto the cycle row.
func (o CycleOutcome) Apply(c *Cycle) {
	c.FeeCollectionAmount = o.FeeCollectionAmount
	c.FeeCollectionSignature = o.FeeCollectionSignature
	c.BuyAmount = o.BuyAmount
	c.BuySignature = o.BuySignature
	c.BuyVenue = o.BuyVenue
	c.TokensBought = o.TokensBought
	c.PlatformFeeAmount = o.PlatformFeeAmount
	c.PlatformFeeSignature = o.PlatformFeeSignature
	c.RewardFeeAmount = o.RewardFeeAmount
	c.RewardFeeSignature = o.RewardFeeSignature
	c.TokenSweepSignature = o.TokenSweepSignature
	c.LiquidityAmount = o.LiquidityAmount
	c.LiquiditySignature = o.LiquiditySignature
	c.RewardSignature = o.RewardSignature
	c.StepErrors = o.StepErrors
	c.ErrorMessage = o.ErrorMessage
}

// Columns returns the outcome as a gorm column map.
func (o CycleOutcome) Columns() map[string]interface{} {
	return map[string]interface{}{
		"fee_collection_amount":    o.FeeCollectionAmount,
		"fee_collection_signature": o.FeeCollectionSignature,
		"buy_amount":               o.BuyAmount,
		"buy_signature":            o.BuySignature,
		"buy_venue":                o.BuyVenue,
		"tokens_bought":            o.TokensBought,
		"platform_fee_amount":      o.PlatformFeeAmount,
		"platform_fee_signature":   o.PlatformFeeSignature,
		"reward_fee_amount":        o.RewardFeeAmount,
		"reward_fee_signature":     o.RewardFeeSignature,
		"token_sweep_signature":    o.TokenSweepSignature,
		"liquidity_amount":         o.LiquidityAmount,
		"liquidity_signature":      o.LiquiditySignature,
		"reward_signature":         o.RewardSignature,
		"step_errors":              o.StepErrors,
		"error_message":            o.ErrorMessage,
	}
}
