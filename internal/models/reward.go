package models

import (
	"time"
)

// Reward selection modes.
const (
	RewardModeLastQualifyingTrader = "last_qualifying_trader"
	RewardModeExplicitAddress      = "explicit_address"
)

// Reward is one payout from the reward wallet.
type Reward struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CycleID          uint      `gorm:"column:cycle_id;not null;index" json:"cycle_id"`
	RecipientAddress string    `gorm:"column:recipient_address;size:64;not null" json:"recipient_address"`
	SolAmount        float64   `gorm:"column:sol_amount;not null" json:"sol_amount"`
	Signature        string    `gorm:"column:signature;size:128;not null" json:"signature"`
	SelectionMode    string    `gorm:"column:selection_mode;size:32;not null" json:"selection_mode"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Reward) TableName() string {
	return "rewards"
}
