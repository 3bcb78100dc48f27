// Package network reads the shared network aggregate from the leaderboard and
// publishes each player's contribution back to it.
//
// The aggregate is eventually consistent: it is whatever the leaderboard held
// when it was scanned, and every player publishes on their own schedule. Reward
// shares computed against it drift slightly as the snapshot lags reality. There
// is no central total to lock against, so none is attempted.
package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LeaderboardSource is the read side of the leaderboard.
type LeaderboardSource interface {
	ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

// LeaderboardSink is the write side of the leaderboard.
type LeaderboardSink interface {
	UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error
}

// Snapshot is one scan of the leaderboard.
type Snapshot struct {
	TotalHashrate float64
	ActivePlayers int
}

// Reader scans the leaderboard. It does not cache.
type Reader struct {
	src LeaderboardSource
}

func NewReader(src LeaderboardSource) *Reader {
	return &Reader{src: src}
}

// FetchNetworkTotal sums the published hash-rate of every player.
func (r *Reader) FetchNetworkTotal(ctx context.Context) (float64, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.TotalHashrate, nil
}

// Snapshot returns the network total and the number of players publishing a
// non-zero hash-rate.
func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	entries, err := r.src.ListLeaderboard(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list leaderboard: %w", err)
	}
	var snap Snapshot
	for _, e := range entries {
		if e.Hashrate <= 0 {
			continue
		}
		snap.TotalHashrate += e.Hashrate
		snap.ActivePlayers++
	}
	return snap, nil
}

// Publisher upserts leaderboard entries, throttled per wallet.
type Publisher struct {
	sink   LeaderboardSink
	every  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPublisher allows at most one unforced publish per wallet every interval.
func NewPublisher(sink LeaderboardSink, every time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		sink:     sink,
		every:    every,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Publish writes entry when the wallet's limiter allows it or force is set.
// It reports whether a write was attempted.
func (p *Publisher) Publish(ctx context.Context, entry models.LeaderboardEntry, force bool) (bool, error) {
	if !force && !p.limiter(entry.Wallet).Allow() {
		return false, nil
	}
	if err := p.sink.UpsertLeaderboard(ctx, entry); err != nil {
		return true, fmt.Errorf("publish leaderboard entry: %w", err)
	}
	p.logger.Debug("leaderboard entry published",
		zap.String("wallet", entry.Wallet),
		zap.Float64("hashrate", entry.Hashrate),
		zap.Float64("total_earned", entry.TotalEarned),
	)
	return true, nil
}

// Forget drops the wallet's limiter when its session ends.
func (p *Publisher) Forget(wallet string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, wallet)
}

func (p *Publisher) limiter(wallet string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[wallet]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.every), 1)
		p.limiters[wallet] = l
	}
	return l
}
