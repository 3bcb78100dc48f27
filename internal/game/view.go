package game

import (
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/earnings"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"
)

// Phase is the accrual state of a session.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseReconciling
	PhaseAccruing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseReconciling:
		return "reconciling"
	case PhaseAccruing:
		return "accruing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DeviceView is a device plus its derived figures.
type DeviceView struct {
	miner.Device
	Name           string  `json:"name"`
	MaxLevel       int     `json:"max_level"`
	EffectiveHash  float64 `json:"effective_hash"`
	EffectiveWatts float64 `json:"effective_watts"`
	UpgradeCost    float64 `json:"upgrade_cost"`
	XPToNext       int64   `json:"xp_to_next"`
	RepairCost     float64 `json:"repair_cost"`
}

// View is an immutable snapshot of a player, published by the session after
// every change. Readers never touch the session's own state.
type View struct {
	Wallet          string               `json:"wallet"`
	Username        string               `json:"username"`
	Phase           string               `json:"phase"`
	Balance         float64              `json:"balance"`
	Unclaimed       float64              `json:"unclaimed"`
	TotalEarned     float64              `json:"total_earned"`
	XP              int64                `json:"xp"`
	DailyStreak     int                  `json:"daily_streak"`
	StreakClaimable bool                 `json:"streak_claimable"`
	Room            miner.Room           `json:"room"`
	Devices         []DeviceView         `json:"devices"`
	Boosters        []earnings.Booster   `json:"boosters"`
	Achievements    map[string]time.Time `json:"achievements"`
	MetaUpgrades    map[string]bool      `json:"meta_upgrades"`
	Hashrate        float64              `json:"hashrate"`
	Watts           float64              `json:"watts"`
	UsedWatts       float64              `json:"used_watts"`
	LastAccrualAt   time.Time            `json:"last_accrual_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func buildView(p *models.Player, c *miner.Catalog, phase Phase, hash, watts float64, now time.Time) *View {
	c2 := p.Clone()
	v := &View{
		Wallet:          c2.Wallet,
		Username:        c2.Username,
		Phase:           phase.String(),
		Balance:         c2.Balance,
		Unclaimed:       c2.Unclaimed,
		TotalEarned:     c2.TotalEarned,
		XP:              c2.XP,
		DailyStreak:     c2.DailyStreak,
		StreakClaimable: c2.StreakClaimedDay != dayKey(now),
		Room:            c.Room(c2.RoomLevel),
		Devices:         make([]DeviceView, 0, len(c2.Devices)),
		Boosters:        c2.Boosters,
		Achievements:    c2.Achievements,
		MetaUpgrades:    c2.MetaUpgrades,
		Hashrate:        hash,
		Watts:           watts,
		UsedWatts:       c.UsedWatts(c2.Devices),
		LastAccrualAt:   c2.LastAccrualAt,
		UpdatedAt:       now,
	}
	for _, d := range c2.Devices {
		dv := DeviceView{Device: d, XPToNext: miner.XPToNext(d)}
		if t, ok := c.Template(d.TemplateID); ok {
			dv.Name = t.Name
			dv.MaxLevel = t.MaxLevel
			dv.EffectiveHash = miner.EffectiveHash(t, d)
			dv.EffectiveWatts = miner.EffectiveWatts(t, d)
			dv.UpgradeCost = miner.UpgradeCost(t, d)
			dv.RepairCost = miner.RepairCost(t, d)
		}
		v.Devices = append(v.Devices, dv)
	}
	return v
}

// RawDevices returns the plain device records of the view.
func (v *View) RawDevices() []miner.Device {
	out := make([]miner.Device, len(v.Devices))
	for i, d := range v.Devices {
		out[i] = d.Device
	}
	return out
}
