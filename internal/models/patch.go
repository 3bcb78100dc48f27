package models

import (
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/earnings"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
)

// PlayerPatch is a partial update of a player row. Nil fields are left as
// they are.
type PlayerPatch struct {
	Username         *string
	Balance          *float64
	Unclaimed        *float64
	LastAccrualAt    *time.Time
	XP               *int64
	TotalEarned      *float64
	DailyStreak      *int
	LastStreakDay    *string
	StreakClaimedDay *string
	RoomLevel        *int
	Devices          *[]miner.Device
	Achievements     *map[string]time.Time
	MetaUpgrades     *map[string]bool
	Boosters         *[]earnings.Booster
}

// FullPatch captures every mutable field of p.
func FullPatch(p *Player) PlayerPatch {
	c := p.Clone()
	return PlayerPatch{
		Username:         &c.Username,
		Balance:          &c.Balance,
		Unclaimed:        &c.Unclaimed,
		LastAccrualAt:    &c.LastAccrualAt,
		XP:               &c.XP,
		TotalEarned:      &c.TotalEarned,
		DailyStreak:      &c.DailyStreak,
		LastStreakDay:    &c.LastStreakDay,
		StreakClaimedDay: &c.StreakClaimedDay,
		RoomLevel:        &c.RoomLevel,
		Devices:          &c.Devices,
		Achievements:     &c.Achievements,
		MetaUpgrades:     &c.MetaUpgrades,
		Boosters:         &c.Boosters,
	}
}

// Apply writes the set fields of the patch onto p.
func (u PlayerPatch) Apply(p *Player) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.Balance != nil {
		p.Balance = *u.Balance
	}
	if u.Unclaimed != nil {
		p.Unclaimed = *u.Unclaimed
	}
	if u.LastAccrualAt != nil {
		p.LastAccrualAt = *u.LastAccrualAt
	}
	if u.XP != nil {
		p.XP = *u.XP
	}
	if u.TotalEarned != nil {
		p.TotalEarned = *u.TotalEarned
	}
	if u.DailyStreak != nil {
		p.DailyStreak = *u.DailyStreak
	}
	if u.LastStreakDay != nil {
		p.LastStreakDay = *u.LastStreakDay
	}
	if u.StreakClaimedDay != nil {
		p.StreakClaimedDay = *u.StreakClaimedDay
	}
	if u.RoomLevel != nil {
		p.RoomLevel = *u.RoomLevel
	}
	if u.Devices != nil {
		p.Devices = cloneDevices(*u.Devices)
	}
	if u.Achievements != nil {
		p.Achievements = make(map[string]time.Time, len(*u.Achievements))
		for k, v := range *u.Achievements {
			p.Achievements[k] = v
		}
	}
	if u.MetaUpgrades != nil {
		p.MetaUpgrades = make(map[string]bool, len(*u.MetaUpgrades))
		for k, v := range *u.MetaUpgrades {
			p.MetaUpgrades[k] = v
		}
	}
	if u.Boosters != nil {
		p.Boosters = cloneBoosters(*u.Boosters)
	}
}

// Columns lists the database columns the patch touches.
func (u PlayerPatch) Columns() []string {
	var cols []string
	add := func(set bool, col string) {
		if set {
			cols = append(cols, col)
		}
	}
	add(u.Username != nil, "username")
	add(u.Balance != nil, "balance")
	add(u.Unclaimed != nil, "unclaimed")
	add(u.LastAccrualAt != nil, "last_accrual_at")
	add(u.XP != nil, "xp")
	add(u.TotalEarned != nil, "total_earned")
	add(u.DailyStreak != nil, "daily_streak")
	add(u.LastStreakDay != nil, "last_streak_day")
	add(u.StreakClaimedDay != nil, "streak_claimed_day")
	add(u.RoomLevel != nil, "room_level")
	add(u.Devices != nil, "devices")
	add(u.Achievements != nil, "achievements")
	add(u.MetaUpgrades != nil, "meta_upgrades")
	add(u.Boosters != nil, "boosters")
	return cols
}

// Empty reports whether the patch sets nothing.
func (u PlayerPatch) Empty() bool {
	return len(u.Columns()) == 0
}
