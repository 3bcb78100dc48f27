package oracle

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"
	"github.com/Soar-Robotics/hashfarm/internal/network"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"go.uber.org/zap"
)

type staticSignals network.Snapshot

func (s staticSignals) Snapshot(context.Context) (network.Snapshot, error) {
	return network.Snapshot(s), nil
}

type brokenPutStore struct{ *store.MemoryStore }

func (brokenPutStore) PutPowerPriceIfAbsent(context.Context, models.PowerPrice) (*models.PowerPrice, error) {
	return nil, errors.New("write rejected")
}

func fixedNow() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }

func TestPriceIsPure(t *testing.T) {
	s := Signals{TotalHashrate: 3000, ActivePlayers: 4, Events: []Event{EventHeatWave}}
	if Price("2026-10-15", s) != Price("2026-10-15", s) {
		t.Fatal("same inputs gave different prices")
	}
}

func TestPriceComponents(t *testing.T) {
	day := "2026-10-15"
	j := Jitter(day)
	if j < -0.1 || j > 0.1 {
		t.Fatalf("jitter %v out of range", j)
	}

	round := func(v float64) float64 { return math.Round(v*1000) / 1000 }
	tests := []struct {
		name string
		s    Signals
		want float64
	}{
		{"base", Signals{}, round(0.7 + j)},
		{"hashrate", Signals{TotalHashrate: 2000}, round(0.7 + 0.1 + j)},
		{"hashrate capped", Signals{TotalHashrate: 1e9}, round(0.7 + 0.3 + j)},
		{"players capped", Signals{ActivePlayers: 500}, round(0.7 + 0.2 + j)},
		{"heat wave", Signals{Events: []Event{EventHeatWave}}, round(0.7 + 0.2 + j)},
		{"green day", Signals{Events: []Event{EventGreenEnergyDay}}, round(0.7 - 0.15 + j)},
	}
	for _, tt := range tests {
		if got := Price(day, tt.s); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: price = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPriceClamped(t *testing.T) {
	for d := 1; d <= 28; d++ {
		day := time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		high := Price(day, Signals{TotalHashrate: 1e12, ActivePlayers: 1e6, Events: []Event{EventHeatWave, EventHeatWave}})
		low := Price(day, Signals{Events: []Event{EventGreenEnergyDay}})
		if high > 1.5 || low < 0.4 {
			t.Fatalf("%s: prices %v/%v escape [0.4, 1.5]", day, low, high)
		}
	}
}

func TestDailyPriceStableAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()

	first := New(shared, staticSignals{TotalHashrate: 1000, ActivePlayers: 3}, nil, fixedNow, zap.NewNop())
	second := New(shared, staticSignals{TotalHashrate: 1500, ActivePlayers: 4}, nil, fixedNow, zap.NewNop())

	p1, err := first.Today(ctx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	p2, err := second.Today(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("processes disagree: %v vs %v", p1, p2)
	}
	if own := Price("2026-10-15", Signals{TotalHashrate: 1500, ActivePlayers: 4}); own == p1 {
		t.Fatal("test signals should produce distinct local prices")
	}
}

func TestPriceServedWhenStoreWriteFails(t *testing.T) {
	ctx := context.Background()
	o := New(brokenPutStore{store.NewMemoryStore()}, staticSignals{}, nil, fixedNow, zap.NewNop())
	p, err := o.Today(ctx)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if p != Price("2026-10-15", Signals{}) {
		t.Fatalf("price = %v", p)
	}
	o.mu.Lock()
	_, cached := o.cache["2026-10-15"]
	o.mu.Unlock()
	if cached {
		t.Fatal("price from a failed write must not be cached")
	}
}

func TestQuoteIncludesYesterday(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if _, err := s.PutPowerPriceIfAbsent(ctx, models.PowerPrice{Day: "2026-10-14", Price: 0.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutPowerPriceIfAbsent(ctx, models.PowerPrice{Day: "2026-10-15", Price: 0.75}); err != nil {
		t.Fatal(err)
	}
	cal := Calendar{"2026-10-15": {EventHeatWave}}
	q, err := New(s, staticSignals{}, cal, fixedNow, zap.NewNop()).Quote(ctx)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Price != 0.75 || !q.HasYesterday || q.Yesterday != 0.5 || q.Delta != 0.25 {
		t.Fatalf("quote = %+v", q)
	}
}
