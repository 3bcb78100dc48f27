// Package oracle prices energy per day.
//
// Price is a pure function of the day and the network load signals. Oracle
// wraps it with a per-day cache backed by the shared store, where the first
// price written for a day wins, so every process converges on one price even
// when each computed its own from slightly different signals.
package oracle

import (
	"encoding/binary"
	"math"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	basePrice      = 0.7
	hashrateFactor = 0.00005
	hashrateCap    = 0.3
	playerFactor   = 0.01
	playerCap      = 0.2
	jitterSpan     = 0.1
	minPrice       = 0.4
	maxPrice       = 1.5

	dayLayout = "2006-01-02"
)

// Event is a calendar modifier for a day's price.
type Event string

const (
	EventNormal         Event = "normal"
	EventHeatWave       Event = "heat_wave"
	EventGreenEnergyDay Event = "green_energy_day"
)

var eventModifiers = map[Event]float64{
	EventHeatWave:       0.2,
	EventGreenEnergyDay: -0.15,
}

// ValidEvent reports whether e is a known event name.
func ValidEvent(e Event) bool {
	_, ok := eventModifiers[e]
	return ok || e == EventNormal
}

// Signals are the network load inputs for a day's price.
type Signals struct {
	TotalHashrate float64
	ActivePlayers int
	Events        []Event
}

// Day formats t as the UTC calendar day key.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Price computes the currency-per-kWh price for day.
func Price(day string, s Signals) float64 {
	price := basePrice
	price += math.Min(hashrateFactor*math.Max(s.TotalHashrate, 0), hashrateCap)
	price += math.Min(playerFactor*float64(max(s.ActivePlayers, 0)), playerCap)

	seen := make(map[Event]bool, len(s.Events))
	for _, e := range s.Events {
		if seen[e] {
			continue
		}
		seen[e] = true
		price += eventModifiers[e]
	}

	price += Jitter(day)
	price = math.Max(minPrice, math.Min(price, maxPrice))
	return math.Round(price*1000) / 1000
}

// Jitter maps a hash of the day string into [-0.1, +0.1].
func Jitter(day string) float64 {
	sum := blake2b.Sum256([]byte(day))
	frac := float64(binary.BigEndian.Uint64(sum[:8])) / float64(math.MaxUint64)
	return frac*2*jitterSpan - jitterSpan
}
