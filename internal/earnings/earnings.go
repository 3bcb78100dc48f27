// Package earnings computes reward accrual for a window of mining time.
//
// A player's reward is their share of the network hash-rate times the reward
// rate, minus the cost of the energy their producing devices drew over the
// same window. Net gain is never negative.
package earnings

import (
	"math"
	"time"
)

const wattSecondsPerKWh = 3_600_000

// Window describes one accrual period.
type Window struct {
	PlayerHash  float64
	NetworkHash float64
	PlayerWatts float64
	Price       float64 // currency per kWh
	RewardRate  float64 // currency per second at a 100% share
	Elapsed     time.Duration
}

// Result is the breakdown of one accrual period.
type Result struct {
	Share float64
	Gross float64
	KWh   float64
	Cost  float64
	Net   float64
}

// Share is the player's fraction of the network total. The total comes from a
// possibly stale snapshot and is used as read, so a player whose upgrade is not
// yet reflected in it can see a share above 1 until the next publish lands.
func Share(playerHash, networkHash float64) float64 {
	if playerHash <= 0 || networkHash <= 0 {
		return 0
	}
	return playerHash / networkHash
}

// Compute returns the reward breakdown for w.
func Compute(w Window) Result {
	secs := w.Elapsed.Seconds()
	if secs <= 0 {
		return Result{}
	}
	var r Result
	r.Share = Share(w.PlayerHash, w.NetworkHash)
	r.Gross = r.Share * w.RewardRate * secs
	if w.PlayerWatts > 0 {
		r.KWh = w.PlayerWatts * secs / wattSecondsPerKWh
	}
	r.Cost = r.KWh * w.Price
	r.Net = math.Max(0, r.Gross-r.Cost)
	return r
}

// NetGain is shorthand for Compute(w).Net.
func NetGain(w Window) float64 {
	return Compute(w).Net
}
