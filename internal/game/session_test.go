package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/degradation"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"
	"github.com/Soar-Robotics/hashfarm/internal/network"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeNetwork struct {
	mu    sync.Mutex
	total float64
	err   error
}

func (n *fakeNetwork) FetchNetworkTotal(context.Context) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.total, n.err
}

func (n *fakeNetwork) set(total float64, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.total, n.err = total, err
}

type fixedPrice float64

func (p fixedPrice) Today(context.Context) (float64, error) { return float64(p), nil }

type fixedRand struct {
	roll float64
	pick int
}

func (f fixedRand) Float64() float64 { return f.roll }
func (f fixedRand) IntN(int) int     { return f.pick }

// faultStore fails reads or writes on demand.
type faultStore struct {
	*store.MemoryStore
	failReads  atomic.Bool
	failWrites atomic.Bool
}

var errStoreDown = errors.New("store unavailable")

func (f *faultStore) GetPlayer(ctx context.Context, wallet string) (*models.Player, error) {
	if f.failReads.Load() {
		return nil, errStoreDown
	}
	return f.MemoryStore.GetPlayer(ctx, wallet)
}

func (f *faultStore) UpsertPlayer(ctx context.Context, wallet string, patch models.PlayerPatch) error {
	if f.failWrites.Load() {
		return errStoreDown
	}
	return f.MemoryStore.UpsertPlayer(ctx, wallet, patch)
}

func testCatalog() *miner.Catalog {
	return miner.NewCatalog(
		[]miner.Template{
			{ID: 1, Name: "Digger", Price: 100, Hash: 1000, Watts: 10, MaxLevel: 3, BaseUpgradeCost: 1, BaseRepairRate: 0.5},
			{ID: 2, Name: "Furnace", Price: 10, Hash: 500, Watts: 70, MaxLevel: 3, BaseUpgradeCost: 2, BaseRepairRate: 1},
			{ID: 3, Name: "Sipper", Price: 10, Hash: 100, Watts: 20, MaxLevel: 3, BaseUpgradeCost: 1, BaseRepairRate: 1},
		},
		[]miner.Room{
			{Level: 0, Name: "Shed", GridCols: 2, GridRows: 2, MaxSlots: 4, MaxPower: 150},
			{Level: 1, Name: "Barn", GridCols: 2, GridRows: 1, MaxSlots: 2, MaxPower: 300, UpgradeCost: 200},
		},
	)
}

type harness struct {
	t       *testing.T
	mgr     *Manager
	store   *faultStore
	clock   *fakeClock
	network *fakeNetwork
	params  Params
}

// newHarness builds a manager with every ticker disabled; tests drive ticks
// and sweeps by hand through run.
func newHarness(t *testing.T, opts ...func(*Params, *Deps)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		store:   &faultStore{MemoryStore: store.NewMemoryStore()},
		clock:   &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)},
		network: &fakeNetwork{total: 4000},
	}
	params := DefaultParams()
	params.AccrualInterval = 0
	params.XPInterval = 0
	params.OverheatInterval = 0
	params.DurabilityInterval = 0
	params.LootInterval = 0
	params.LeaderboardInterval = 0

	var ids atomic.Int64
	deps := Deps{
		Store:     h.store,
		Network:   h.network,
		Prices:    fixedPrice(0.8),
		Publisher: network.NewPublisher(h.store, time.Minute, zap.NewNop()),
		Catalog:   testCatalog(),
		Now:       h.clock.Now,
		NewID: func() string {
			return fmt.Sprintf("dev-%d", ids.Add(1))
		},
		NewRand: func() degradation.Rand { return fixedRand{roll: 1} },
	}
	for _, opt := range opts {
		opt(&params, &deps)
	}
	h.params = params
	h.mgr = NewManager(deps, params)
	t.Cleanup(func() { h.mgr.Shutdown(context.Background()) })
	return h
}

func (h *harness) session(wallet string) *Session {
	h.t.Helper()
	s, err := h.mgr.Session(context.Background(), wallet)
	if err != nil {
		h.t.Fatalf("open session %s: %v", wallet, err)
	}
	return s
}

// run executes fn on the session goroutine, the way a ticker would.
func (h *harness) run(s *Session, fn func(ctx context.Context)) {
	h.t.Helper()
	err := s.call(context.Background(), func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	if err != nil {
		h.t.Fatalf("run on session: %v", err)
	}
}

func (h *harness) seed(p *models.Player) {
	h.t.Helper()
	if err := h.store.MemoryStore.UpsertPlayer(context.Background(), p.Wallet, models.FullPatch(p)); err != nil {
		h.t.Fatalf("seed %s: %v", p.Wallet, err)
	}
}

func (h *harness) stored(wallet string) *models.Player {
	h.t.Helper()
	p, err := h.store.MemoryStore.GetPlayer(context.Background(), wallet)
	if err != nil {
		h.t.Fatalf("read %s: %v", wallet, err)
	}
	return p
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewPlayerDefaults(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")

	if s.Phase() != PhaseAccruing {
		t.Fatalf("phase = %v, want accruing", s.Phase())
	}
	if s.Balance() != 500 || s.Unclaimed() != 0 || s.RoomLevel() != 0 || len(s.Devices()) != 0 {
		t.Fatalf("view = %+v", s.View())
	}
	p := h.stored("w1")
	if p.Balance != 500 || !p.LastAccrualAt.Equal(h.clock.Now()) || p.DailyStreak != 1 {
		t.Fatalf("stored = %+v", p)
	}
}

func TestOfflineCatchUp(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	p := models.NewPlayer("w1", 0, now.Add(-time.Hour))
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	h.seed(p)

	s := h.session("w1")

	// (1000/4000) * 0.5 * 3600 - (10 * 3600 / 3_600_000) * 0.8
	want := 450 - 0.008
	if got := s.Unclaimed(); math.Abs(got-want) > 1e-6 {
		t.Fatalf("unclaimed = %v, want %v", got, want)
	}
	stored := h.stored("w1")
	if math.Abs(stored.Unclaimed-want) > 1e-6 || !stored.LastAccrualAt.Equal(now) {
		t.Fatalf("catch-up not persisted before accruing: %+v", stored)
	}
}

func TestOfflineCatchUpNotReplayed(t *testing.T) {
	h := newHarness(t)
	p := models.NewPlayer("w1", 0, h.clock.Now().Add(-time.Hour))
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	h.seed(p)

	first := h.session("w1").Unclaimed()
	if err := h.mgr.Close(context.Background(), "w1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := h.session("w1").Unclaimed(); !approx(got, first) {
		t.Fatalf("reopen credited again: %v, want %v", got, first)
	}
}

func TestLoadFailsWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	p := models.NewPlayer("w1", 0, h.clock.Now().Add(-time.Hour))
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	h.seed(p)
	h.network.set(0, errors.New("leaderboard down"))

	if _, err := h.mgr.Session(context.Background(), "w1"); err == nil {
		t.Fatal("expected load error")
	}
	if h.mgr.Active() != 0 {
		t.Fatal("failed load should not leave a session behind")
	}
	if got := h.stored("w1"); got.Unclaimed != 0 {
		t.Fatalf("failed load wrote unclaimed %v", got.Unclaimed)
	}
}

func TestAccrualMonotonic(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")
	if _, err := s.BuyDevice(context.Background(), 1, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}

	totals := []float64{4000, 1000, 0, 250000, 4000}
	prev := s.Unclaimed()
	for i, total := range totals {
		h.network.set(total, nil)
		if i == 2 {
			h.network.set(0, errors.New("scan failed"))
		}
		h.clock.Advance(time.Second)
		h.run(s, s.accrue)
		got := s.Unclaimed()
		if got < prev {
			t.Fatalf("tick %d: unclaimed dropped from %v to %v", i, prev, got)
		}
		prev = got
	}
	if prev <= 0 {
		t.Fatal("expected some accrual")
	}
}

func TestSkippedTickCoveredByNext(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")
	if _, err := s.BuyDevice(context.Background(), 1, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	start := s.View().LastAccrualAt

	h.network.set(0, errors.New("scan failed"))
	h.clock.Advance(time.Second)
	h.run(s, s.accrue)
	if s.Unclaimed() != 0 || !s.View().LastAccrualAt.Equal(start) {
		t.Fatal("failed tick should leave the accrual window open")
	}

	h.network.set(4000, nil)
	h.clock.Advance(time.Second)
	h.run(s, s.accrue)
	want := 0.25*0.5*2 - 10*2.0/3_600_000*0.8
	if got := s.Unclaimed(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("unclaimed = %v, want %v for the full two seconds", got, want)
	}
}

func TestTickPersistFailureKeepsMemory(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")
	if _, err := s.BuyDevice(context.Background(), 1, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	h.store.failWrites.Store(true)
	h.clock.Advance(10 * time.Second)
	h.run(s, s.accrue)
	if s.Unclaimed() <= 0 {
		t.Fatal("tick should credit in memory even when the write fails")
	}
}

func TestClaimIdempotent(t *testing.T) {
	h := newHarness(t)
	p := models.NewPlayer("w1", 500, h.clock.Now())
	p.Unclaimed = 50
	h.seed(p)
	s := h.session("w1")
	ctx := context.Background()

	first, err := s.Claim(ctx)
	if err != nil || first != 50 {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	second, err := s.Claim(ctx)
	if err != nil || second != 0 {
		t.Fatalf("second claim = %v, %v; want 0", second, err)
	}
	if s.Balance() != 550 || s.Unclaimed() != 0 || s.View().TotalEarned != 50 {
		t.Fatalf("view = %+v", s.View())
	}
	stored := h.stored("w1")
	if stored.Balance != 550 || stored.Unclaimed != 0 {
		t.Fatalf("claim not durable: %+v", stored)
	}
	sum, err := h.store.SumClaims(ctx, "w1", h.clock.Now().Add(-time.Hour), h.clock.Now().Add(time.Hour))
	if err != nil || sum != 50 {
		t.Fatalf("claim ledger sum = %v, %v", sum, err)
	}
}

func TestClaimFailsWhenStoreDown(t *testing.T) {
	h := newHarness(t)
	p := models.NewPlayer("w1", 500, h.clock.Now())
	p.Unclaimed = 50
	h.seed(p)
	s := h.session("w1")

	h.store.failWrites.Store(true)
	if _, err := s.Claim(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if s.Unclaimed() != 50 || s.Balance() != 500 {
		t.Fatalf("failed claim changed state: %+v", s.View())
	}
}

func TestOverheatGating(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")
	ctx := context.Background()
	d, err := s.BuyDevice(ctx, 1, 0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	s.rng = fixedRand{roll: 0}
	h.run(s, func(context.Context) { s.sweepOverheat() })
	if !s.Devices()[0].Overheated || s.View().Hashrate != 0 {
		t.Fatalf("device should be overheated with no hash-rate: %+v", s.View())
	}

	before := s.Unclaimed()
	h.clock.Advance(5 * time.Second)
	h.run(s, s.accrue)
	if s.Unclaimed() != before {
		t.Fatal("overheated device earned")
	}

	if _, err := s.RepairDevice(ctx, d.InstanceID); err != nil {
		t.Fatalf("repair: %v", err)
	}
	h.clock.Advance(time.Second)
	h.run(s, s.accrue)
	if s.Unclaimed() <= before {
		t.Fatal("repaired device should earn again")
	}
}

func TestDurabilityZeroKeepsDeviceAndRefunds(t *testing.T) {
	h := newHarness(t, func(p *Params, _ *Deps) { p.DurabilityLoss = 60 })
	s := h.session("w1")
	if _, err := s.BuyDevice(context.Background(), 1, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	balance := s.Balance()

	h.run(s, func(context.Context) { s.sweepDurability() })
	h.run(s, func(context.Context) { s.sweepDurability() })
	h.run(s, func(context.Context) { s.sweepDurability() })

	devices := s.Devices()
	if len(devices) != 1 || devices[0].Durability != 0 {
		t.Fatalf("devices = %+v", devices)
	}
	if got := s.Balance(); got != balance+h.params.BrokenRefund {
		t.Fatalf("balance = %v, want one refund of %v", got, h.params.BrokenRefund)
	}
}

func TestXPSweepScalesPlayerXP(t *testing.T) {
	h := newHarness(t, func(p *Params, _ *Deps) { p.XPPerTick = 100 })
	p := models.NewPlayer("w1", 500, h.clock.Now())
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	p.MetaUpgrades["xp-boost-1"] = true
	h.seed(p)
	s := h.session("w1")

	h.run(s, func(context.Context) { s.sweepXP() })
	if s.Devices()[0].XP != 100 || s.XP() != 105 {
		t.Fatalf("device xp %d, player xp %d", s.Devices()[0].XP, s.XP())
	}
}

func TestLootGrantsPlayerBooster(t *testing.T) {
	h := newHarness(t)
	s := h.session("w1")
	if _, err := s.BuyDevice(context.Background(), 1, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	plain := s.View().Hashrate

	s.rng = fixedRand{roll: 0, pick: 0}
	h.run(s, func(context.Context) { s.sweepLoot() })
	v := s.View()
	if len(v.Boosters) != 1 || v.Boosters[0].Kind != "haste" || !v.Devices[0].Boosted {
		t.Fatalf("view = %+v", v)
	}
	if !approx(v.Hashrate, plain*1.25) {
		t.Fatalf("hashrate = %v, want %v", v.Hashrate, plain*1.25)
	}

	h.clock.Advance(h.params.BoosterDuration + time.Second)
	h.run(s, s.accrue)
	if v := s.View(); len(v.Boosters) != 0 || v.Devices[0].Boosted {
		t.Fatalf("expired booster kept: %+v", v)
	}
}

func TestLeaderboardPublishedOnLoad(t *testing.T) {
	h := newHarness(t)
	p := models.NewPlayer("w1", 500, h.clock.Now())
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	h.seed(p)
	h.session("w1")

	entries, err := h.store.ListLeaderboard(context.Background())
	if err != nil || len(entries) != 1 || entries[0].Hashrate != 1000 {
		t.Fatalf("leaderboard = %+v, %v", entries, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConcurrentClaimsWithLiveTickers(t *testing.T) {
	h := newHarness(t, func(p *Params, d *Deps) {
		p.AccrualInterval = time.Millisecond
		p.XPInterval = time.Millisecond
		d.Now = func() time.Time { return time.Now().UTC() }
	})
	p := models.NewPlayer("w1", 500, time.Now().UTC())
	p.Devices = []miner.Device{{InstanceID: "d1", TemplateID: 1, Level: 1, Durability: 100}}
	h.seed(p)
	s := h.session("w1")

	waitFor(t, "first accrual", func() bool { return s.Unclaimed() > 0 })

	const workers, claimsEach = 8, 50
	var (
		mu      sync.Mutex
		claimed float64
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < claimsEach; j++ {
				amount, err := s.Claim(context.Background())
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				mu.Lock()
				claimed += amount
				mu.Unlock()
				if v := s.View(); v.Balance < 500 || v.Unclaimed < 0 {
					t.Errorf("view = balance %v unclaimed %v", v.Balance, v.Unclaimed)
					return
				}
			}
		}()
	}
	wg.Wait()
	waitFor(t, "xp sweep", func() bool { return s.XP() > 0 })

	if claimed <= 0 {
		t.Fatal("no currency claimed")
	}
	if err := h.mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	final := s.View()
	if math.Abs(final.Balance-(500+claimed)) > 1e-6 {
		t.Fatalf("balance = %v, want %v", final.Balance, 500+claimed)
	}
	stored := h.stored("w1")
	if stored.Balance != final.Balance || stored.Unclaimed != final.Unclaimed || stored.XP != final.XP {
		t.Fatalf("stored = balance %v unclaimed %v xp %v, memory = %v %v %v",
			stored.Balance, stored.Unclaimed, stored.XP, final.Balance, final.Unclaimed, final.XP)
	}
	sum, err := h.store.SumClaims(context.Background(), "w1", p.CreatedAt.Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil || math.Abs(sum-claimed) > 1e-6 {
		t.Fatalf("claim ledger = %v, %v; want %v", sum, err, claimed)
	}
}
