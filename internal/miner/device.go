// Package miner holds the device model: the template and room catalogs and the
// pure formulas that turn a device's level and durability into hash-rate, power
// draw and costs. Nothing in this package mutates its inputs.
package miner

import "math"

const (
	MaxDurability = 100
	baseXPToNext  = 100
)

// Device is one placed miner instance.
type Device struct {
	InstanceID string `json:"instance_id"`
	TemplateID int    `json:"template_id"`
	Position   int    `json:"position"`
	Level      int    `json:"level"`
	XP         int64  `json:"xp"`
	Durability int    `json:"durability"`
	Overheated bool   `json:"overheated"`
	Boosted    bool   `json:"boosted"`
}

// Producing reports whether the device currently contributes hash-rate.
func (d Device) Producing() bool {
	return !d.Overheated && d.Durability > 0
}

// UpgradeCost is the currency needed to take d to the next level.
func UpgradeCost(t Template, d Device) float64 {
	if d.Level < 1 {
		return 0
	}
	next := float64(d.Level + 1)
	return t.BaseUpgradeCost * next * next
}

// XPToNext is the device XP needed to take d to the next level.
func XPToNext(d Device) int64 {
	if d.Level < 1 {
		return 0
	}
	next := int64(d.Level + 1)
	return baseXPToNext * next * next
}

// RepairCost is the currency needed to restore d to full durability.
func RepairCost(t Template, d Device) float64 {
	missing := MaxDurability - clampDurability(d.Durability)
	return math.Ceil(float64(missing) * t.BaseRepairRate)
}

// EffectiveHash is the level-adjusted hash-rate: +10% per level for levels
// 2..5 and +5% per level after that.
func EffectiveHash(t Template, d Device) float64 {
	bonus := 0.0
	for lvl := 2; lvl <= d.Level; lvl++ {
		if lvl <= 5 {
			bonus += 0.10
		} else {
			bonus += 0.05
		}
	}
	return math.Round(t.Hash * (1 + bonus))
}

// EffectiveWatts is the level-adjusted power draw, 2% lower per level above 1
// and never below 1W.
func EffectiveWatts(t Template, d Device) float64 {
	reduction := 0.0
	if d.Level > 1 {
		reduction = 0.02 * float64(d.Level-1)
	}
	return math.Max(1, math.Round(t.Watts*(1-reduction)))
}

// ActiveHash is the hash-rate d contributes right now. Overheated and
// zero-durability devices contribute nothing.
func ActiveHash(t Template, d Device) float64 {
	if !d.Producing() {
		return 0
	}
	return EffectiveHash(t, d)
}

// ActiveWatts is the power d draws right now.
func ActiveWatts(t Template, d Device) float64 {
	if !d.Producing() {
		return 0
	}
	return EffectiveWatts(t, d)
}

func clampDurability(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxDurability {
		return MaxDurability
	}
	return v
}
