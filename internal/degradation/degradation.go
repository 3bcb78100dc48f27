// Package degradation implements the periodic sweeps that age a player's
// devices: XP gain, overheating, durability decay and loot drops.
//
// Every sweep takes the current device list and returns a fresh list; the
// input is never modified, so a reader holding the old slice keeps a
// consistent view.
package degradation

import (
	"math"

	"github.com/Soar-Robotics/hashfarm/internal/earnings"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
)

const (
	overheatPerWatt = 0.005
	overheatCap     = 0.15
)

// Rand is the randomness a sweep needs. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// XPSweep adds gain XP to every device that is not overheated. It returns the
// new list and the total XP handed out.
func XPSweep(devices []miner.Device, gain int64) ([]miner.Device, int64) {
	out := make([]miner.Device, len(devices))
	var total int64
	for i, d := range devices {
		if !d.Overheated && gain > 0 {
			d.XP += gain
			total += gain
		}
		out[i] = d
	}
	return out, total
}

// OverheatChance is the per-sweep probability that a device drawing watts
// overheats.
func OverheatChance(watts float64) float64 {
	return math.Min(overheatPerWatt*watts, overheatCap)
}

// OverheatSweep rolls an overheat trial for every device that is not already
// overheated. It returns the new list and how many devices tripped.
func OverheatSweep(devices []miner.Device, catalog *miner.Catalog, rng Rand) ([]miner.Device, int) {
	out := make([]miner.Device, len(devices))
	tripped := 0
	for i, d := range devices {
		if !d.Overheated {
			if t, ok := catalog.Template(d.TemplateID); ok {
				if rng.Float64() < OverheatChance(miner.EffectiveWatts(t, d)) {
					d.Overheated = true
					tripped++
				}
			}
		}
		out[i] = d
	}
	return out, tripped
}

// DurabilitySweep takes loss durability from every device that is not
// overheated and still has durability left, flooring at zero. It returns the
// new list and the number of devices that reached zero on this sweep. Broken
// devices stay in the list until repaired or recycled.
func DurabilitySweep(devices []miner.Device, loss int) ([]miner.Device, int) {
	out := make([]miner.Device, len(devices))
	broken := 0
	for i, d := range devices {
		if !d.Overheated && d.Durability > 0 && loss > 0 {
			d.Durability -= loss
			if d.Durability <= 0 {
				d.Durability = 0
				broken++
			}
		}
		if d.Durability > miner.MaxDurability {
			d.Durability = miner.MaxDurability
		}
		out[i] = d
	}
	return out, broken
}

// LootSweep rolls a drop for every device. Each success yields a booster kind
// picked uniformly; the boosters belong to the player, not the device.
func LootSweep(devices []miner.Device, rng Rand, chance float64) []earnings.BoosterKind {
	var drops []earnings.BoosterKind
	for range devices {
		if rng.Float64() < chance {
			drops = append(drops, earnings.BoosterKinds[rng.IntN(len(earnings.BoosterKinds))])
		}
	}
	return drops
}
