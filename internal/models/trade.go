package models

import (
	"time"
)

// Trade venues.
const (
	VenueBondingCurve = "bonding_curve"
	VenueAMM          = "amm"
)

// Trade sides.
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Trade is one buy or sell. System buys carry a cycle id; user trades carry a trader address.
// Exactly one of SolAmount and TokenAmount is set, depending on how the trade was denominated.
type Trade struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	AssetID       string    `gorm:"column:asset_id;size:64;not null;index" json:"asset_id"`
	Signature     string    `gorm:"column:signature;size:128;not null;uniqueIndex" json:"signature"`
	Venue         string    `gorm:"column:venue;size:32;default:''" json:"venue"`
	Side          string    `gorm:"column:side;size:8;not null;default:buy" json:"side"`
	SolAmount     *float64  `gorm:"column:sol_amount" json:"sol_amount"`
	TokenAmount   *float64  `gorm:"column:token_amount" json:"token_amount"`
	IsSystemBuy   bool      `gorm:"column:is_system_buy;default:false" json:"is_system_buy"`
	CycleID       *uint     `gorm:"column:cycle_id;index" json:"cycle_id"`
	TraderAddress string    `gorm:"column:trader_address;size:64;default:''" json:"trader_address"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
