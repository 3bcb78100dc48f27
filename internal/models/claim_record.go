package models

import (
	"time"
)

// ClaimRecord is one append-only ledger row per successful claim.
type ClaimRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Wallet    string `gorm:"index"`
	Amount    float64
	Timestamp time.Time `gorm:"index"`
}
