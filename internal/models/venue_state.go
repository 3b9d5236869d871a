package models

import (
	"time"
)

// VenueState records whether an asset has graduated from the bonding curve to the AMM.
type VenueState struct {
	AssetID     string     `gorm:"column:asset_id;primaryKey;size:64" json:"asset_id"`
	Graduated   bool       `gorm:"column:graduated;default:false" json:"graduated"`
	GraduatedAt *time.Time `gorm:"column:graduated_at" json:"graduated_at"`
	LastVenue   string     `gorm:"column:last_venue;size:32;default:''" json:"last_venue"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (VenueState) TableName() string {
	return "venue_state"
}
