package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for a hashfarm server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Game     GameConfig     `toml:"game"`
	Power    PowerConfig    `toml:"power"`
	API      APIConfig      `toml:"api"`
	LogLevel string         `toml:"log_level"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type DatabaseConfig struct {
	DSN             string   `toml:"dsn"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

type StorageConfig struct {
	Backend string `toml:"backend"` // postgres, bolt or memory
	DataDir string `toml:"data_dir"`
}

// GameConfig carries the tunable economy parameters. The formulas are fixed;
// only their rates and schedules live here.
type GameConfig struct {
	RewardRate         float64  `toml:"reward_rate"` // currency per second at a 100% network share
	StartingBalance    float64  `toml:"starting_balance"`
	AccrualInterval    Duration `toml:"accrual_interval"`
	XPInterval         Duration `toml:"xp_interval"`
	OverheatInterval   Duration `toml:"overheat_interval"`
	DurabilityInterval Duration `toml:"durability_interval"`
	LootInterval       Duration `toml:"loot_interval"`
	LeaderboardEvery   Duration `toml:"leaderboard_interval"`
	XPPerTick          int64    `toml:"xp_per_tick"`
	DurabilityLoss     int      `toml:"durability_loss"`
	BrokenRefund       float64  `toml:"broken_refund"`
	RecycleRefundRatio float64  `toml:"recycle_refund_ratio"`
	LootChance         float64  `toml:"loot_chance"`
	BoosterDuration    Duration `toml:"booster_duration"`
	StreakReward       float64  `toml:"streak_reward"`
	ShutdownTimeout    Duration `toml:"shutdown_timeout"`
	IdleTimeout        Duration `toml:"session_idle_timeout"` // 0 keeps sessions open until shutdown
}

type PowerConfig struct {
	Events []PowerEvent `toml:"events"`
}

// PowerEvent schedules a price modifier on a UTC day.
type PowerEvent struct {
	Day  string `toml:"day"` // YYYY-MM-DD
	Kind string `toml:"kind"`
}

type APIConfig struct {
	CORSOrigins  []string `toml:"cors_origins"`
	PushInterval Duration `toml:"push_interval"`
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(v time.Duration) Duration { return Duration{v} }

// DefaultConfig returns a Config with the stock game tuning.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    25,
			ConnMaxLifetime: dur(5 * time.Minute),
		},
		Storage: StorageConfig{
			Backend: "bolt",
			DataDir: ".hashfarm",
		},
		Game: GameConfig{
			RewardRate:         0.5,
			StartingBalance:    500,
			AccrualInterval:    dur(time.Second),
			XPInterval:         dur(3 * time.Second),
			OverheatInterval:   dur(5 * time.Second),
			DurabilityInterval: dur(15 * time.Second),
			LootInterval:       dur(10 * time.Second),
			LeaderboardEvery:   dur(30 * time.Second),
			XPPerTick:          5,
			DurabilityLoss:     5,
			BrokenRefund:       5,
			RecycleRefundRatio: 0.5,
			LootChance:         0.01,
			BoosterDuration:    dur(5 * time.Minute),
			StreakReward:       10,
			ShutdownTimeout:    dur(5 * time.Second),
			IdleTimeout:        dur(10 * time.Minute),
		},
		API: APIConfig{
			CORSOrigins:  []string{"*"},
			PushInterval: dur(time.Second),
		},
		LogLevel: "info",
	}
}

// LoadConfig reads .env (if present), then the TOML file at filePath (if
// non-empty), then applies environment overrides.
func LoadConfig(filePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := DefaultConfig()
	if filePath != "" {
		if _, err := toml.DecodeFile(filePath, config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filePath, err)
		}
	}
	config.applyEnv()
	return config, nil
}

// Environment variables override the file (for containerized deployments).
func (c *Config) applyEnv() {
	if v := os.Getenv("HASHFARM_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("HASHFARM_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("HASHFARM_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("HASHFARM_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("HASHFARM_CORS_ORIGINS"); v != "" {
		c.API.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.API.CORSOrigins = append(c.API.CORSOrigins, o)
			}
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
