// internal/models/power_price.go

package models

import "time"

type PowerPrice struct {
	Day             string    `gorm:"primaryKey" json:"day"` // "2026-10-15"
	Price           float64   `json:"price"`
	NetworkHashrate float64   `json:"network_hashrate"`
	ActivePlayers   int       `json:"active_players"`
	CreatedAt       time.Time `json:"created_at"`
}
