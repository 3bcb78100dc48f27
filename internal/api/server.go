// Package api exposes player sessions over HTTP and a websocket state stream.
// It holds no game rules; every request is forwarded to the player's session.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/game"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"
	"github.com/Soar-Robotics/hashfarm/internal/oracle"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ledger is the read-only store access the API needs.
type Ledger interface {
	GetPlayer(ctx context.Context, wallet string) (*models.Player, error)
	ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	SumClaims(ctx context.Context, wallet string, from, to time.Time) (float64, error)
}

// PriceQuoter serves the daily power price.
type PriceQuoter interface {
	Quote(ctx context.Context) (oracle.Quote, error)
}

type Options struct {
	Manager      *game.Manager
	Ledger       Ledger
	Prices       PriceQuoter
	Catalog      *miner.Catalog
	Logger       *zap.Logger
	CORSOrigins  []string
	PushInterval time.Duration
	Now          func() time.Time
}

type Server struct {
	mgr          *game.Manager
	ledger       Ledger
	prices       PriceQuoter
	catalog      *miner.Catalog
	logger       *zap.Logger
	pushInterval time.Duration
	now          func() time.Time

	engine  *gin.Engine
	httpSrv *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	s := &Server{
		mgr:          opts.Manager,
		ledger:       opts.Ledger,
		prices:       opts.Prices,
		catalog:      opts.Catalog,
		logger:       opts.Logger,
		pushInterval: opts.PushInterval,
		now:          opts.Now,
	}
	s.engine = s.setupRouter(opts.CORSOrigins)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRouter(origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(cors.New(corsConfig(origins)))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/catalog", s.getCatalog)
	router.GET("/leaderboard", s.getLeaderboard)
	router.GET("/power-price", s.getPowerPrice)
	router.GET("/ws/:wallet", s.streamPlayer)

	players := router.Group("/players/:wallet")
	players.GET("", s.getPlayer)
	players.GET("/earnings", s.getEarnings)
	players.POST("/claim", s.claim)
	players.POST("/devices", s.buyDevice)
	players.POST("/devices/:id/upgrade", s.upgradeDevice)
	players.POST("/devices/:id/repair", s.repairDevice)
	players.POST("/devices/:id/recycle", s.recycleDevice)
	players.DELETE("/devices/:id", s.removeDevice)
	players.POST("/room/upgrade", s.upgradeRoom)
	players.POST("/streak/claim", s.claimStreak)
	players.POST("/meta/:id", s.unlockMetaUpgrade)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Run serves on listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	s.httpSrv = &http.Server{
		Addr:              listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", zap.String("listen", listen))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
