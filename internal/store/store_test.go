package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "hashfarm.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bolt,
	}
}

func TestPlayerUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetPlayer(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get missing player: err = %v, want ErrNotFound", err)
			}

			now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
			p := models.NewPlayer("w1", 500, now)
			p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 2, Durability: 80}}
			if err := s.UpsertPlayer(ctx, "w1", models.FullPatch(p)); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			unclaimed := 12.5
			later := now.Add(time.Minute)
			if err := s.UpsertPlayer(ctx, "w1", models.PlayerPatch{Unclaimed: &unclaimed, LastAccrualAt: &later}); err != nil {
				t.Fatalf("partial upsert: %v", err)
			}

			got, err := s.GetPlayer(ctx, "w1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Balance != 500 || got.Unclaimed != 12.5 || !got.LastAccrualAt.Equal(later) {
				t.Fatalf("player = %+v", got)
			}
			if len(got.Devices) != 1 || got.Devices[0].Level != 2 || got.Devices[0].Durability != 80 {
				t.Fatalf("devices = %+v", got.Devices)
			}
		})
	}
}

func TestPowerPriceFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.PutPowerPriceIfAbsent(ctx, models.PowerPrice{Day: "2026-10-15", Price: 0.812})
			if err != nil {
				t.Fatalf("first put: %v", err)
			}
			second, err := s.PutPowerPriceIfAbsent(ctx, models.PowerPrice{Day: "2026-10-15", Price: 0.9})
			if err != nil {
				t.Fatalf("second put: %v", err)
			}
			if first.Price != 0.812 || second.Price != 0.812 {
				t.Fatalf("prices = %v then %v, want 0.812 both", first.Price, second.Price)
			}
			got, err := s.GetPowerPrice(ctx, "2026-10-15")
			if err != nil || got.Price != 0.812 {
				t.Fatalf("get = %+v, %v", got, err)
			}
			if _, err := s.GetPowerPrice(ctx, "2026-10-16"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing day err = %v", err)
			}
		})
	}
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, e := range []models.LeaderboardEntry{
				{Wallet: "a", TotalEarned: 10, Hashrate: 100},
				{Wallet: "b", TotalEarned: 30, Hashrate: 50},
				{Wallet: "a", TotalEarned: 20, Hashrate: 150},
			} {
				if err := s.UpsertLeaderboard(ctx, e); err != nil {
					t.Fatalf("upsert: %v", err)
				}
			}
			entries, err := s.ListLeaderboard(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(entries) != 2 || entries[0].Wallet != "b" || entries[1].Hashrate != 150 {
				t.Fatalf("entries = %+v", entries)
			}
		})
	}
}

func TestClaimLedger(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			recs := []models.ClaimRecord{
				{Wallet: "a", Amount: 1, Timestamp: base.Add(-2 * time.Hour)},
				{Wallet: "a", Amount: 2, Timestamp: base.Add(time.Hour)},
				{Wallet: "a", Amount: 4, Timestamp: base.Add(2 * time.Hour)},
				{Wallet: "b", Amount: 8, Timestamp: base.Add(time.Hour)},
			}
			for _, r := range recs {
				if err := s.AppendClaim(ctx, r); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			total, err := s.SumClaims(ctx, "a", base, base.Add(3*time.Hour))
			if err != nil {
				t.Fatalf("sum: %v", err)
			}
			if total != 6 {
				t.Fatalf("sum = %v, want 6", total)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Options{Backend: "redis"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBoltReopenReportsPlayers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hashfarm.db")
	first, err := NewBoltStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	p := models.NewPlayer("w1", 500, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	if err := first.UpsertPlayer(ctx, "w1", models.FullPatch(p)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	second, err := NewBoltStore(path, zap.New(core))
	if err != nil {
		t.Fatalf("reopen bolt: %v", err)
	}
	defer second.Close()

	if n := logs.FilterMessage("bolt player count unavailable").Len(); n != 0 {
		t.Fatalf("player count failed %d times", n)
	}
	opened := logs.FilterMessage("bolt store opened").All()
	if len(opened) != 1 {
		t.Fatalf("open log entries = %d, want 1", len(opened))
	}
	if got := opened[0].ContextMap()["players"]; got != int64(1) {
		t.Fatalf("players = %v, want 1", got)
	}
}
