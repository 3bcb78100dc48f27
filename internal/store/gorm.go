package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres backend.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenGorm connects to postgres, tunes the connection pool and migrates the
// schema.
func OpenGorm(opts Options, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := NewGormStore(db, logger)
	if err := s.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// NewGormStore wraps an already-open gorm handle.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate() error {
	err := s.db.AutoMigrate(
		&models.Player{},
		&models.LeaderboardEntry{},
		&models.PowerPrice{},
		&models.ClaimRecord{},
	)
	if err != nil {
		return fmt.Errorf("migrate database schema: %w", err)
	}
	return nil
}

func (s *GormStore) GetPlayer(ctx context.Context, wallet string) (*models.Player, error) {
	var p models.Player
	result := s.db.WithContext(ctx).First(&p, "wallet = ?", wallet)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

func (s *GormStore) UpsertPlayer(ctx context.Context, wallet string, patch models.PlayerPatch) error {
	now := time.Now().UTC()
	p := models.NewPlayer(wallet, 0, now)
	patch.Apply(p)

	cols := append(patch.Columns(), "updated_at")
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(p).Error
}

func (s *GormStore) ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := s.db.WithContext(ctx).Order("total_earned DESC").Find(&entries).Error
	return entries, err
}

func (s *GormStore) UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}},
		UpdateAll: true,
	}).Create(&entry).Error
}

func (s *GormStore) GetPowerPrice(ctx context.Context, day string) (*models.PowerPrice, error) {
	var p models.PowerPrice
	result := s.db.WithContext(ctx).First(&p, "day = ?", day)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

func (s *GormStore) PutPowerPriceIfAbsent(ctx context.Context, price models.PowerPrice) (*models.PowerPrice, error) {
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&price).Error
	if err != nil {
		return nil, err
	}
	// Read back: a concurrent writer may have won the insert.
	return s.GetPowerPrice(ctx, price.Day)
}

func (s *GormStore) AppendClaim(ctx context.Context, rec models.ClaimRecord) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) SumClaims(ctx context.Context, wallet string, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&models.ClaimRecord{}).
		Where("wallet = ? AND timestamp BETWEEN ? AND ?", wallet, from, to).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Info("closing database connection")
	return sqlDB.Close()
}
