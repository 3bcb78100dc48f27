package models

import "time"

// LeaderboardEntry is a player's published contribution to the network.
type LeaderboardEntry struct {
	Wallet      string    `gorm:"primaryKey" json:"wallet"`
	TotalEarned float64   `json:"total_earned"`
	Hashrate    float64   `gorm:"index" json:"hashrate"`
	XP          int64     `gorm:"column:xp" json:"xp"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (LeaderboardEntry) TableName() string { return "leaderboard" }
