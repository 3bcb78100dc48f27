package earnings

import "time"

// BoosterKind names a timed loot effect.
type BoosterKind string

const (
	BoosterHaste      BoosterKind = "haste"
	BoosterEfficiency BoosterKind = "efficiency"
	BoosterBonus      BoosterKind = "bonus"
)

// BoosterKinds lists every kind in loot-roll order.
var BoosterKinds = []BoosterKind{BoosterHaste, BoosterEfficiency, BoosterBonus}

type multiplier struct {
	hash  float64
	watts float64
}

var boosterEffects = map[BoosterKind]multiplier{
	BoosterHaste:      {hash: 1.25, watts: 1},
	BoosterEfficiency: {hash: 1, watts: 0.80},
	BoosterBonus:      {hash: 1.10, watts: 0.90},
}

// Booster is a timed multiplier owned by a player.
type Booster struct {
	Kind      BoosterKind `json:"kind"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Active reports whether b still applies at now.
func (b Booster) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// Multipliers folds every active booster into a single hash and watts factor.
func Multipliers(boosters []Booster, now time.Time) (hash, watts float64) {
	hash, watts = 1, 1
	for _, b := range boosters {
		if !b.Active(now) {
			continue
		}
		m, ok := boosterEffects[b.Kind]
		if !ok {
			continue
		}
		hash *= m.hash
		watts *= m.watts
	}
	return hash, watts
}

// Prune drops expired boosters. It returns a new slice.
func Prune(boosters []Booster, now time.Time) []Booster {
	out := make([]Booster, 0, len(boosters))
	for _, b := range boosters {
		if b.Active(now) {
			out = append(out, b)
		}
	}
	return out
}
