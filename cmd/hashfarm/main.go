package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Soar-Robotics/hashfarm/internal/api"
	"github.com/Soar-Robotics/hashfarm/internal/config"
	"github.com/Soar-Robotics/hashfarm/internal/game"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/network"
	"github.com/Soar-Robotics/hashfarm/internal/oracle"
	"github.com/Soar-Robotics/hashfarm/internal/store"
	"github.com/Soar-Robotics/hashfarm/internal/utils"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const reapInterval = time.Minute

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "hashfarm",
		Short: "Hashfarm idle mining game server",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	root.AddCommand(serveCmd(), priceCmd(), migrateCmd(), configCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates the config and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func storeOptions(cfg *config.Config) store.Options {
	return store.Options{
		Backend:         cfg.Storage.Backend,
		DSN:             cfg.Database.DSN,
		BoltPath:        cfg.BoltPath(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration,
	}
}

// ── serve command ──

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(storeOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to open store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := miner.DefaultCatalog()
	reader := network.NewReader(st)
	prices := oracle.New(st, reader, cfg.Calendar(), nil, logger)
	mgr := game.NewManager(game.Deps{
		Store:     st,
		Network:   reader,
		Prices:    prices,
		Publisher: network.NewPublisher(st, cfg.Game.LeaderboardEvery.Duration, logger),
		Catalog:   catalog,
		Logger:    logger,
	}, game.ParamsFromConfig(cfg.Game))

	go mgr.Run(ctx, reapInterval)

	srv := api.NewServer(api.Options{
		Manager:      mgr,
		Ledger:       st,
		Prices:       prices,
		Catalog:      catalog,
		Logger:       logger,
		CORSOrigins:  cfg.API.CORSOrigins,
		PushInterval: cfg.API.PushInterval.Duration,
	})
	logger.Info("Hashfarm starting",
		zap.String("version", version),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("listen", cfg.Server.Listen),
	)
	serveErr := srv.Run(ctx, cfg.Server.Listen)
	stop()

	logger.Info("Shutting down...", zap.Int("sessions", mgr.Active()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Game.ShutdownTimeout.Duration+10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Session shutdown incomplete", zap.Error(err))
	}
	mgr.Counter().LogCounts(logger)

	if serveErr != nil {
		logger.Error("API server failed", zap.Error(serveErr))
		return serveErr
	}
	return nil
}

// ── price command ──

func priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Print today's power price",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := store.Open(storeOptions(cfg), logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			q, err := oracle.New(st, network.NewReader(st), cfg.Calendar(), nil, logger).Quote(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %.2f\n", q.Day, q.Price)
			if q.HasYesterday {
				fmt.Printf("yesterday  %.2f  (%+.2f)\n", q.Yesterday, q.Delta)
			}
			return nil
		},
	}
}

// ── migrate command ──

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the postgres schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is required to migrate")
			}
			opts := storeOptions(cfg)
			opts.Backend = store.BackendPostgres
			st, err := store.OpenGorm(opts, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Println("Schema up to date.")
			return nil
		},
	}
}

// ── config command ──

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
			return toml.NewEncoder(os.Stdout).Encode(cfg.Redact())
		},
	}
}

// ── version command ──

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("hashfarm %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
