package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/degradation"
	"github.com/Soar-Robotics/hashfarm/internal/earnings"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"go.uber.org/zap"
)

const (
	readTimeout            = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Session owns one player's state. A single goroutine runs every action,
// accrual tick and degradation sweep for the player, one at a time.
type Session struct {
	wallet string
	deps   Deps
	params Params
	logger *zap.Logger
	rng    degradation.Rand

	// Owned by the run goroutine once the session has started.
	state     *models.Player
	lastPrice float64

	phase    atomic.Int32
	view     atomic.Pointer[View]
	lastUsed atomic.Int64

	w         *writer
	inbox     chan func()
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(wallet string, deps Deps, params Params) *Session {
	logger := deps.Logger.With(zap.String("wallet", wallet))
	s := &Session{
		wallet: wallet,
		deps:   deps,
		params: params,
		logger: logger,
		rng:    deps.NewRand(),
		w:      newWriter(deps.Store, wallet, logger),
		inbox:  make(chan func()),
		done:   make(chan struct{}),
	}
	s.touch()
	return s
}

// Wallet returns the player identity this session serves.
func (s *Session) Wallet() string { return s.wallet }

// Phase returns the current accrual state.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

// View returns the latest published snapshot.
func (s *Session) View() *View {
	s.touch()
	return s.view.Load()
}

func (s *Session) Balance() float64        { return s.View().Balance }
func (s *Session) Unclaimed() float64      { return s.View().Unclaimed }
func (s *Session) XP() int64               { return s.View().XP }
func (s *Session) RoomLevel() int          { return s.View().Room.Level }
func (s *Session) Devices() []miner.Device { return s.View().RawDevices() }

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) touch() { s.lastUsed.Store(s.deps.Now().UnixNano()) }

func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastUsed.Load()))
}

// load reads the player, credits offline earnings and persists the result
// before the live loop starts. A crash after this write cannot replay the
// catch-up because LastAccrualAt has moved to now.
func (s *Session) load(ctx context.Context) error {
	s.setPhase(PhaseLoading)
	now := s.deps.Now()
	p, err := s.deps.Store.GetPlayer(ctx, s.wallet)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p = models.NewPlayer(s.wallet, s.params.StartingBalance, now)
		s.logger.Info("Created new player", zap.Float64("balance", p.Balance))
	case err != nil:
		return fmt.Errorf("load player: %w", err)
	}
	s.normalize(p, now)
	advanceStreak(p, now)

	s.setPhase(PhaseReconciling)
	elapsed := now.Sub(p.LastAccrualAt)
	if elapsed > 0 {
		res, err := s.window(ctx, p, now, elapsed)
		if err != nil {
			return fmt.Errorf("offline catch-up: %w", err)
		}
		p.Unclaimed += res.Net
		s.logger.Info("Offline catch-up",
			zap.Duration("elapsed", elapsed),
			zap.Float64("share", res.Share),
			zap.Float64("gain", res.Net),
		)
	}
	p.LastAccrualAt = now

	if err := s.w.writeSync(ctx, models.FullPatch(p)); err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	s.state = p
	s.publishView(now)
	s.publishLeaderboard(ctx, true)
	return nil
}

// normalize repairs records written by older versions or other processes.
func (s *Session) normalize(p *models.Player, now time.Time) {
	if p.Achievements == nil {
		p.Achievements = map[string]time.Time{}
	}
	if p.MetaUpgrades == nil {
		p.MetaUpgrades = map[string]bool{}
	}
	if p.LastAccrualAt.IsZero() || p.LastAccrualAt.After(now) {
		p.LastAccrualAt = now
	}
	p.Devices = miner.FitToRoom(p.Devices, s.deps.Catalog.Room(p.RoomLevel))
	p.Boosters = earnings.Prune(p.Boosters, now)
}

func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setPhase(PhaseAccruing)
	s.publishView(s.deps.Now())
	go s.run(ctx)
}

// abort releases a session whose load failed.
func (s *Session) abort() {
	s.setPhase(PhaseClosed)
	s.w.close()
	close(s.done)
}

// Close stops the timers, persists the player one last time and waits for the
// session goroutine to exit or ctx to expire.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	accrual, stopAccrual := newTicker(s.params.AccrualInterval)
	defer stopAccrual()
	xp, stopXP := newTicker(s.params.XPInterval)
	defer stopXP()
	overheat, stopOverheat := newTicker(s.params.OverheatInterval)
	defer stopOverheat()
	durability, stopDurability := newTicker(s.params.DurabilityInterval)
	defer stopDurability()
	loot, stopLoot := newTicker(s.params.LootInterval)
	defer stopLoot()
	board, stopBoard := newTicker(s.params.LeaderboardInterval)
	defer stopBoard()

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case cmd := <-s.inbox:
			cmd()
		case <-accrual:
			s.accrue(ctx)
		case <-xp:
			s.sweepXP()
		case <-overheat:
			s.sweepOverheat()
		case <-durability:
			s.sweepDurability()
		case <-loot:
			s.sweepLoot()
		case <-board:
			s.publishLeaderboard(ctx, true)
		}
	}
}

func (s *Session) teardown() {
	s.setPhase(PhaseClosed)
	timeout := s.params.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.w.writeSync(ctx, models.FullPatch(s.state)); err != nil {
		s.logger.Error("Final persist failed", zap.Float64("unclaimed", s.state.Unclaimed), zap.Error(err))
	}
	s.w.close()
	s.publishView(s.deps.Now())
	s.logger.Info("Session closed", zap.Float64("unclaimed", s.state.Unclaimed))
}

// call runs fn on the session goroutine and returns its result.
func (s *Session) call(ctx context.Context, fn func(ctx context.Context) error) error {
	s.touch()
	reply := make(chan error, 1)
	cmd := func() { reply <- fn(ctx) }
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// totals is the player's boosted hash-rate and power draw at now.
func (s *Session) totals(p *models.Player, now time.Time) (hash, watts float64) {
	hash, watts = s.deps.Catalog.ActiveTotals(p.Devices)
	bh, bw := earnings.Multipliers(p.Boosters, now)
	_, mw := metaMultipliers(p.MetaUpgrades)
	return hash * bh, watts * bw * mw
}

// window computes the reward for elapsed ending at now. A player with no
// producing hash-rate earns nothing and skips the network and price reads.
func (s *Session) window(ctx context.Context, p *models.Player, now time.Time, elapsed time.Duration) (earnings.Result, error) {
	hash, watts := s.totals(p, now)
	if hash <= 0 {
		return earnings.Result{}, nil
	}
	network, err := s.deps.Network.FetchNetworkTotal(ctx)
	if err != nil {
		return earnings.Result{}, fmt.Errorf("fetch network total: %w", err)
	}
	price, err := s.price(ctx)
	if err != nil {
		return earnings.Result{}, err
	}
	return earnings.Compute(earnings.Window{
		PlayerHash:  hash,
		NetworkHash: network,
		PlayerWatts: watts,
		Price:       price,
		RewardRate:  s.params.RewardRate,
		Elapsed:     elapsed,
	}), nil
}

// price returns today's price, falling back to the last one seen when the
// oracle is unavailable.
func (s *Session) price(ctx context.Context) (float64, error) {
	price, err := s.deps.Prices.Today(ctx)
	if err != nil {
		if s.lastPrice > 0 {
			s.logger.Warn("Using last known power price", zap.Float64("price", s.lastPrice), zap.Error(err))
			return s.lastPrice, nil
		}
		return 0, fmt.Errorf("power price: %w", err)
	}
	s.lastPrice = price
	return price, nil
}

// accrue credits the reward earned since the last accrual. When the network
// or price cannot be read the tick is skipped and LastAccrualAt stays put, so
// the next successful tick covers the gap.
func (s *Session) accrue(ctx context.Context) {
	now := s.deps.Now()
	p := s.state
	streakChanged := advanceStreak(p, now)
	elapsed := now.Sub(p.LastAccrualAt)
	if elapsed <= 0 {
		return
	}
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	res, err := s.window(readCtx, p, now, elapsed)
	if err != nil {
		s.logger.Warn("Accrual tick skipped", zap.Duration("elapsed", elapsed), zap.Error(err))
		if streakChanged {
			s.persistAsync(now)
		}
		return
	}
	p.Unclaimed += res.Net
	p.LastAccrualAt = now
	p.Boosters = earnings.Prune(p.Boosters, now)
	p.Devices = markBoosted(p.Devices, len(p.Boosters) > 0)
	s.persistAsync(now)
}

func (s *Session) sweepXP() {
	p := s.state
	devices, total := degradation.XPSweep(p.Devices, s.params.XPPerTick)
	if total == 0 {
		return
	}
	xpMult, _ := metaMultipliers(p.MetaUpgrades)
	p.Devices = devices
	p.XP += scaleXP(total, xpMult)
	s.persistAsync(s.deps.Now())
}

func (s *Session) sweepOverheat() {
	p := s.state
	devices, tripped := degradation.OverheatSweep(p.Devices, s.deps.Catalog, s.rng)
	if tripped == 0 {
		return
	}
	p.Devices = devices
	s.logger.Debug("Devices overheated", zap.Int("count", tripped))
	s.persistAsync(s.deps.Now())
}

// sweepDurability wears devices down. A device that reaches zero stays in
// place, producing nothing until repaired, and pays a flat refund once.
func (s *Session) sweepDurability() {
	p := s.state
	if len(p.Devices) == 0 {
		return
	}
	devices, broken := degradation.DurabilitySweep(p.Devices, s.params.DurabilityLoss)
	p.Devices = devices
	if broken > 0 {
		refund := float64(broken) * s.params.BrokenRefund
		p.Balance += refund
		s.logger.Info("Devices broke down", zap.Int("count", broken), zap.Float64("refund", refund))
	}
	s.persistAsync(s.deps.Now())
}

func (s *Session) sweepLoot() {
	p := s.state
	drops := degradation.LootSweep(p.Devices, s.rng, s.params.LootChance)
	if len(drops) == 0 {
		return
	}
	now := s.deps.Now()
	boosters := earnings.Prune(p.Boosters, now)
	for _, kind := range drops {
		boosters = append(boosters, earnings.Booster{Kind: kind, ExpiresAt: now.Add(s.params.BoosterDuration)})
		s.logger.Info("Booster dropped", zap.String("kind", string(kind)))
	}
	p.Boosters = boosters
	p.Devices = markBoosted(p.Devices, true)
	s.persistAsync(now)
}

// markBoosted returns devices with the boosted flag set to on, copying only
// when a flag changes.
func markBoosted(devices []miner.Device, on bool) []miner.Device {
	for i := range devices {
		if devices[i].Boosted != on {
			out := make([]miner.Device, len(devices))
			copy(out, devices)
			for j := range out {
				out[j].Boosted = on
			}
			return out
		}
	}
	return devices
}

func (s *Session) persistAsync(now time.Time) {
	s.w.enqueue(models.FullPatch(s.state))
	s.publishView(now)
}

func (s *Session) publishView(now time.Time) {
	hash, watts := s.totals(s.state, now)
	s.view.Store(buildView(s.state, s.deps.Catalog, s.Phase(), hash, watts, now))
}

// publishLeaderboard pushes the player's contribution. Unforced publishes are
// throttled by the publisher.
func (s *Session) publishLeaderboard(ctx context.Context, force bool) {
	if s.deps.Publisher == nil {
		return
	}
	now := s.deps.Now()
	hash, _ := s.totals(s.state, now)
	entry := models.LeaderboardEntry{
		Wallet:      s.wallet,
		TotalEarned: s.state.TotalEarned,
		Hashrate:    hash,
		XP:          s.state.XP,
		UpdatedAt:   now,
	}
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	if _, err := s.deps.Publisher.Publish(ctx, entry, force); err != nil {
		s.logger.Warn("Leaderboard publish failed", zap.Error(err))
	}
}
