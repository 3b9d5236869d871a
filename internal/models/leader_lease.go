package models

import (
	"time"
)

// LeaderLease is a named mutual-exclusion lease held by one instance until it expires.
type LeaderLease struct {
	Name      string    `gorm:"column:name;primaryKey;size:128" json:"name"`
	Holder    string    `gorm:"column:holder;size:64;not null" json:"holder"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (LeaderLease) TableName() string {
	return "leader_leases"
}
