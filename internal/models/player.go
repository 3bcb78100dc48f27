package models

import (
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/earnings"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
)

const DefaultUsername = "New Miner"

type Player struct {
	Wallet           string               `gorm:"primaryKey" json:"wallet"`
	Username         string               `json:"username"`
	Balance          float64              `json:"balance"`
	Unclaimed        float64              `json:"unclaimed"`
	LastAccrualAt    time.Time            `json:"last_accrual_at"`
	XP               int64                `gorm:"column:xp" json:"xp"`
	TotalEarned      float64              `json:"total_earned"`
	DailyStreak      int                  `json:"daily_streak"`
	LastStreakDay    string               `json:"last_streak_day"`    // YYYY-MM-DD, UTC
	StreakClaimedDay string               `json:"streak_claimed_day"` // YYYY-MM-DD, UTC
	RoomLevel        int                  `json:"room_level"`
	Devices          []miner.Device       `gorm:"serializer:json" json:"devices"`
	Achievements     map[string]time.Time `gorm:"serializer:json" json:"achievements"`
	MetaUpgrades     map[string]bool      `gorm:"serializer:json" json:"meta_upgrades"`
	Boosters         []earnings.Booster   `gorm:"serializer:json" json:"boosters"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// NewPlayer returns the record created the first time a wallet is seen.
func NewPlayer(wallet string, startingBalance float64, now time.Time) *Player {
	return &Player{
		Wallet:        wallet,
		Username:      DefaultUsername,
		Balance:       startingBalance,
		LastAccrualAt: now,
		Devices:       []miner.Device{},
		Achievements:  map[string]time.Time{},
		MetaUpgrades:  map[string]bool{},
		Boosters:      []earnings.Booster{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of p.
func (p *Player) Clone() *Player {
	c := *p
	c.Devices = cloneDevices(p.Devices)
	c.Boosters = cloneBoosters(p.Boosters)
	c.Achievements = make(map[string]time.Time, len(p.Achievements))
	for k, v := range p.Achievements {
		c.Achievements[k] = v
	}
	c.MetaUpgrades = make(map[string]bool, len(p.MetaUpgrades))
	for k, v := range p.MetaUpgrades {
		c.MetaUpgrades[k] = v
	}
	return &c
}

func cloneDevices(in []miner.Device) []miner.Device {
	out := make([]miner.Device, len(in))
	copy(out, in)
	return out
}

func cloneBoosters(in []earnings.Booster) []earnings.Booster {
	out := make([]earnings.Booster, len(in))
	copy(out, in)
	return out
}
