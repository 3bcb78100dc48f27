package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketPlayers     = []byte("players")
	bucketLeaderboard = []byte("leaderboard")
	bucketPrices      = []byte("power_prices")
	bucketClaims      = []byte("claims")
)

// BoltStore is an embedded single-file backend for running without postgres.
// Records are CBOR-encoded; each Store call is one bolt transaction.
type BoltStore struct {
	db     *bbolt.DB
	enc    cbor.EncMode
	logger *zap.Logger
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPlayers, bucketLeaderboard, bucketPrices, bucketClaims} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}

	s := &BoltStore{db: db, enc: enc, logger: logger}

	var players int
	if err := db.View(func(tx *bbolt.Tx) error {
		players = tx.Bucket(bucketPlayers).Stats().KeyN
		return nil
	}); err != nil {
		logger.Debug("bolt player count unavailable", zap.Error(err))
	}
	logger.Info("bolt store opened", zap.String("path", path), zap.Int("players", players))
	return s, nil
}

func (s *BoltStore) GetPlayer(ctx context.Context, wallet string) (*models.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p models.Player
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPlayers).Get([]byte(wallet))
		if v == nil {
			return ErrNotFound
		}
		return cbor.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) UpsertPlayer(ctx context.Context, wallet string, patch models.PlayerPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPlayers)
		p := models.NewPlayer(wallet, 0, now)
		if v := b.Get([]byte(wallet)); v != nil {
			if err := cbor.Unmarshal(v, p); err != nil {
				return fmt.Errorf("decode player %s: %w", wallet, err)
			}
		}
		patch.Apply(p)
		p.UpdatedAt = now
		data, err := s.enc.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode player: %w", err)
		}
		return b.Put([]byte(wallet), data)
	})
}

func (s *BoltStore) ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []models.LeaderboardEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLeaderboard).ForEach(func(k, v []byte) error {
			var e models.LeaderboardEntry
			if err := cbor.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode leaderboard entry %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TotalEarned > entries[j].TotalEarned })
	return entries, nil
}

func (s *BoltStore) UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	data, err := s.enc.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode leaderboard entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLeaderboard).Put([]byte(entry.Wallet), data)
	})
}

func (s *BoltStore) GetPowerPrice(ctx context.Context, day string) (*models.PowerPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p models.PowerPrice
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPrices).Get([]byte(day))
		if v == nil {
			return ErrNotFound
		}
		return cbor.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) PutPowerPriceIfAbsent(ctx context.Context, price models.PowerPrice) (*models.PowerPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	stored := price
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrices)
		if v := b.Get([]byte(price.Day)); v != nil {
			return cbor.Unmarshal(v, &stored)
		}
		data, err := s.enc.Marshal(&price)
		if err != nil {
			return fmt.Errorf("encode power price: %w", err)
		}
		return b.Put([]byte(price.Day), data)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *BoltStore) AppendClaim(ctx context.Context, rec models.ClaimRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketClaims)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = uint(seq)
		data, err := s.enc.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode claim: %w", err)
		}
		return b.Put(claimKey(rec.Wallet, rec.Timestamp, seq), data)
	})
}

func (s *BoltStore) SumClaims(ctx context.Context, wallet string, from, to time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := claimPrefix(wallet)
	total := 0.0
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketClaims).Cursor()
		for k, v := c.Seek(claimKey(wallet, from, 0)); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec models.ClaimRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode claim: %w", err)
			}
			if rec.Timestamp.After(to) {
				break
			}
			total += rec.Amount
		}
		return nil
	})
	return total, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Claim keys sort by wallet, then time, then insertion sequence.
func claimPrefix(wallet string) []byte {
	return append([]byte(wallet), 0)
}

func claimKey(wallet string, ts time.Time, seq uint64) []byte {
	k := claimPrefix(wallet)
	k = binary.BigEndian.AppendUint64(k, uint64(ts.UnixNano()))
	return binary.BigEndian.AppendUint64(k, seq)
}
