package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"
)

// MemoryStore is an in-memory Store. Every read and write copies, so callers
// never share records with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	players     map[string]*models.Player
	leaderboard map[string]models.LeaderboardEntry
	prices      map[string]models.PowerPrice
	claims      []models.ClaimRecord
	nextClaimID uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:     make(map[string]*models.Player),
		leaderboard: make(map[string]models.LeaderboardEntry),
		prices:      make(map[string]models.PowerPrice),
	}
}

func (s *MemoryStore) GetPlayer(_ context.Context, wallet string) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[wallet]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpsertPlayer(_ context.Context, wallet string, patch models.PlayerPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p, ok := s.players[wallet]
	if !ok {
		p = models.NewPlayer(wallet, 0, now)
		s.players[wallet] = p
	}
	patch.Apply(p)
	p.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListLeaderboard(_ context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalEarned > out[j].TotalEarned })
	return out, nil
}

func (s *MemoryStore) UpsertLeaderboard(_ context.Context, entry models.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	s.leaderboard[entry.Wallet] = entry
	return nil
}

func (s *MemoryStore) GetPowerPrice(_ context.Context, day string) (*models.PowerPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[day]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) PutPowerPriceIfAbsent(_ context.Context, price models.PowerPrice) (*models.PowerPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.prices[price.Day]; ok {
		return &existing, nil
	}
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	s.prices[price.Day] = price
	return &price, nil
}

func (s *MemoryStore) AppendClaim(_ context.Context, rec models.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClaimID++
	rec.ID = s.nextClaimID
	s.claims = append(s.claims, rec)
	return nil
}

func (s *MemoryStore) SumClaims(_ context.Context, wallet string, from, to time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0.0
	for _, c := range s.claims {
		if c.Wallet == wallet && !c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			total += c.Amount
		}
	}
	return total, nil
}

func (s *MemoryStore) Close() error { return nil }
