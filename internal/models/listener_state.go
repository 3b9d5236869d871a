package models

import (
	"time"
)

// ListenerStateID is the primary key of the singleton listener_state row.
const ListenerStateID = 1

// ListenerState tracks observed trades against a randomized qualifying-trade threshold.
type ListenerState struct {
	ID                  uint       `gorm:"primarykey" json:"id"`
	AssetID             string     `gorm:"column:asset_id;size:64;not null" json:"asset_id"`
	LastHeartbeatAt     *time.Time `gorm:"column:last_heartbeat_at" json:"last_heartbeat_at"`
	TotalTradesObserved int64      `gorm:"column:total_trades_observed;default:0" json:"total_trades_observed"`
	CurrentThreshold    int64      `gorm:"column:current_threshold;not null" json:"current_threshold"`
	CurrentCount        int64      `gorm:"column:current_count;default:0" json:"current_count"`
	MinTradeSol         float64    `gorm:"column:min_trade_sol;default:0" json:"min_trade_sol"`
	LastWinnerAddress   string     `gorm:"column:last_winner_address;size:64;default:''" json:"last_winner_address"`
	LastWinnerAt        *time.Time `gorm:"column:last_winner_at" json:"last_winner_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ListenerState) TableName() string {
	return "listener_state"
}

// ThresholdMet reports whether enough qualifying trades were observed for a payout.
func (s *ListenerState) ThresholdMet() bool {
	return s.CurrentCount >= s.CurrentThreshold
}
