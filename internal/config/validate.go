package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/oracle"
)

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	switch c.Storage.Backend {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case "bolt":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the bolt backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of: postgres, bolt, memory")
	}

	g := c.Game
	if g.RewardRate <= 0 {
		return fmt.Errorf("game.reward_rate must be positive")
	}
	if g.StartingBalance < 0 {
		return fmt.Errorf("game.starting_balance must not be negative")
	}
	for name, d := range map[string]Duration{
		"accrual_interval":     g.AccrualInterval,
		"xp_interval":          g.XPInterval,
		"overheat_interval":    g.OverheatInterval,
		"durability_interval":  g.DurabilityInterval,
		"loot_interval":        g.LootInterval,
		"leaderboard_interval": g.LeaderboardEvery,
		"booster_duration":     g.BoosterDuration,
	} {
		if d.Duration < 10*time.Millisecond {
			return fmt.Errorf("game.%s must be at least 10ms", name)
		}
	}
	if g.IdleTimeout.Duration < 0 {
		return fmt.Errorf("game.session_idle_timeout must not be negative")
	}
	if g.DurabilityLoss < 0 || g.DurabilityLoss > 100 {
		return fmt.Errorf("game.durability_loss must be 0-100")
	}
	if g.RecycleRefundRatio < 0 || g.RecycleRefundRatio > 1 {
		return fmt.Errorf("game.recycle_refund_ratio must be 0-1")
	}
	if g.LootChance < 0 || g.LootChance > 1 {
		return fmt.Errorf("game.loot_chance must be 0-1")
	}

	for _, e := range c.Power.Events {
		if _, err := time.Parse("2006-01-02", e.Day); err != nil {
			return fmt.Errorf("power.events: invalid day %q", e.Day)
		}
		if !oracle.ValidEvent(oracle.Event(e.Kind)) {
			return fmt.Errorf("power.events: unknown kind %q", e.Kind)
		}
	}
	if c.API.PushInterval.Duration < 100*time.Millisecond {
		return fmt.Errorf("api.push_interval must be at least 100ms")
	}
	return nil
}

// BoltPath is the database file used by the bolt backend.
func (c *Config) BoltPath() string {
	return filepath.Join(c.Storage.DataDir, "hashfarm.db")
}

// Calendar converts the configured power events into the oracle's calendar.
func (c *Config) Calendar() oracle.Calendar {
	cal := make(oracle.Calendar, len(c.Power.Events))
	for _, e := range c.Power.Events {
		cal[e.Day] = append(cal[e.Day], oracle.Event(e.Kind))
	}
	return cal
}

// Redact returns a copy of the config with the database DSN masked for display.
func (c *Config) Redact() *Config {
	copy := *c
	if copy.Database.DSN != "" {
		copy.Database.DSN = "****"
	}
	return &copy
}
