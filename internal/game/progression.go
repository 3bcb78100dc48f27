package game

import (
	"math"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"
)

// MetaUpgrade is a permanent perk bought with player XP.
type MetaUpgrade struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Cost            int64   `json:"cost"`
	XPMultiplier    float64 `json:"xp_multiplier"`
	WattsMultiplier float64 `json:"watts_multiplier"`
}

// MetaUpgrades lists every meta upgrade in display order.
var MetaUpgrades = []MetaUpgrade{
	{ID: "xp-boost-1", Name: "XP Boost I", Cost: 500, XPMultiplier: 1.05, WattsMultiplier: 1},
	{ID: "power-saver", Name: "Power Saver", Cost: 750, XPMultiplier: 1, WattsMultiplier: 0.95},
}

func metaUpgrade(id string) (MetaUpgrade, bool) {
	for _, m := range MetaUpgrades {
		if m.ID == id {
			return m, true
		}
	}
	return MetaUpgrade{}, false
}

// metaMultipliers folds the player's unlocked meta upgrades.
func metaMultipliers(unlocked map[string]bool) (xp, watts float64) {
	xp, watts = 1, 1
	for _, m := range MetaUpgrades {
		if unlocked[m.ID] {
			xp *= m.XPMultiplier
			watts *= m.WattsMultiplier
		}
	}
	return xp, watts
}

// Achievement is a one-time unlock, optionally paying XP.
type Achievement struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reward int64  `json:"reward"`
	done   func(p *models.Player, c *miner.Catalog) bool
}

// Achievements lists every achievement in display order.
var Achievements = []Achievement{
	{
		ID: "first-miner", Name: "First Miner", Reward: 100,
		done: func(p *models.Player, _ *miner.Catalog) bool { return len(p.Devices) > 0 },
	},
	{
		ID: "power-user", Name: "Power User", Reward: 250,
		done: func(p *models.Player, c *miner.Catalog) bool { return c.UsedWatts(p.Devices) >= 1000 },
	},
	{
		ID: "collector", Name: "Collector",
		done: func(p *models.Player, c *miner.Catalog) bool {
			owned := make(map[int]bool, len(p.Devices))
			for _, d := range p.Devices {
				owned[d.TemplateID] = true
			}
			for _, t := range c.Templates() {
				if !owned[t.ID] {
					return false
				}
			}
			return true
		},
	},
}

// unlockAchievements records newly met achievements on p and pays their XP.
// It returns the ids unlocked by this call.
func unlockAchievements(p *models.Player, c *miner.Catalog, now time.Time) []string {
	var unlocked []string
	for _, a := range Achievements {
		if _, ok := p.Achievements[a.ID]; ok {
			continue
		}
		if !a.done(p, c) {
			continue
		}
		p.Achievements[a.ID] = now
		p.XP += a.Reward
		unlocked = append(unlocked, a.ID)
	}
	return unlocked
}

// dayKey is the UTC calendar day used for streaks.
func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// advanceStreak counts a login on now's day: the streak grows on consecutive
// days and restarts at 1 after a gap. It reports whether p changed.
func advanceStreak(p *models.Player, now time.Time) bool {
	today := dayKey(now)
	if p.LastStreakDay == today {
		return false
	}
	if p.LastStreakDay == dayKey(now.AddDate(0, 0, -1)) {
		p.DailyStreak++
	} else {
		p.DailyStreak = 1
	}
	p.LastStreakDay = today
	return true
}

// scaleXP applies a multiplier to an XP amount, rounding to the nearest point.
func scaleXP(xp int64, mult float64) int64 {
	return int64(math.Round(float64(xp) * mult))
}
