// Package store persists player records, the leaderboard, daily power prices
// and the claim ledger. Backends offer single-row reads and single-row upserts
// only; callers must not rely on multi-row transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a point read finds no row.
var ErrNotFound = errors.New("record not found")

// Store is the persistent record store shared by every process.
type Store interface {
	GetPlayer(ctx context.Context, wallet string) (*models.Player, error)
	// UpsertPlayer creates the row if needed and writes the patched columns.
	UpsertPlayer(ctx context.Context, wallet string, patch models.PlayerPatch) error

	ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error

	GetPowerPrice(ctx context.Context, day string) (*models.PowerPrice, error)
	// PutPowerPriceIfAbsent stores price unless the day already has one, and
	// returns whichever price is stored afterwards.
	PutPowerPriceIfAbsent(ctx context.Context, price models.PowerPrice) (*models.PowerPrice, error)

	AppendClaim(ctx context.Context, rec models.ClaimRecord) error
	SumClaims(ctx context.Context, wallet string, from, to time.Time) (float64, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	DSN      string
	BoltPath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open returns the backend named by opts.Backend.
func Open(opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendPostgres:
		return OpenGorm(opts, logger)
	case BackendBolt:
		return NewBoltStore(opts.BoltPath, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
