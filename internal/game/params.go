package game

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/config"
	"github.com/Soar-Robotics/hashfarm/internal/degradation"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Params are the tunable economy settings.
type Params struct {
	RewardRate          float64
	StartingBalance     float64
	AccrualInterval     time.Duration
	XPInterval          time.Duration
	OverheatInterval    time.Duration
	DurabilityInterval  time.Duration
	LootInterval        time.Duration
	LeaderboardInterval time.Duration
	XPPerTick           int64
	DurabilityLoss      int
	BrokenRefund        float64
	RecycleRefundRatio  float64
	LootChance          float64
	BoosterDuration     time.Duration
	StreakReward        float64
	ShutdownTimeout     time.Duration
	IdleTimeout         time.Duration
}

// ParamsFromConfig copies the game section of the config.
func ParamsFromConfig(c config.GameConfig) Params {
	return Params{
		RewardRate:          c.RewardRate,
		StartingBalance:     c.StartingBalance,
		AccrualInterval:     c.AccrualInterval.Duration,
		XPInterval:          c.XPInterval.Duration,
		OverheatInterval:    c.OverheatInterval.Duration,
		DurabilityInterval:  c.DurabilityInterval.Duration,
		LootInterval:        c.LootInterval.Duration,
		LeaderboardInterval: c.LeaderboardEvery.Duration,
		XPPerTick:           c.XPPerTick,
		DurabilityLoss:      c.DurabilityLoss,
		BrokenRefund:        c.BrokenRefund,
		RecycleRefundRatio:  c.RecycleRefundRatio,
		LootChance:          c.LootChance,
		BoosterDuration:     c.BoosterDuration.Duration,
		StreakReward:        c.StreakReward,
		ShutdownTimeout:     c.ShutdownTimeout.Duration,
		IdleTimeout:         c.IdleTimeout.Duration,
	}
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultConfig().Game)
}

// PlayerStore is the slice of the record store a session needs.
type PlayerStore interface {
	GetPlayer(ctx context.Context, wallet string) (*models.Player, error)
	UpsertPlayer(ctx context.Context, wallet string, patch models.PlayerPatch) error
	AppendClaim(ctx context.Context, rec models.ClaimRecord) error
}

// NetworkSource reads the network-wide hash-rate.
type NetworkSource interface {
	FetchNetworkTotal(ctx context.Context) (float64, error)
}

// PriceSource returns today's energy price.
type PriceSource interface {
	Today(ctx context.Context) (float64, error)
}

// LeaderboardPublisher pushes a player's contribution to the leaderboard.
type LeaderboardPublisher interface {
	Publish(ctx context.Context, entry models.LeaderboardEntry, force bool) (bool, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store     PlayerStore
	Network   NetworkSource
	Prices    PriceSource
	Publisher LeaderboardPublisher // optional
	Catalog   *miner.Catalog
	Logger    *zap.Logger
	Counter   *ActionCounter

	Now     func() time.Time
	NewID   func() string
	NewRand func() degradation.Rand
}

func (d Deps) withDefaults() Deps {
	if d.Catalog == nil {
		d.Catalog = miner.DefaultCatalog()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Counter == nil {
		d.Counter = NewActionCounter()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.NewRand == nil {
		d.NewRand = func() degradation.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	return d
}
