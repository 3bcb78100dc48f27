package game

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/miner"
	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
)

// Action names, used for logging and counting.
const (
	OpClaim         = "claim"
	OpBuy           = "buy_device"
	OpUpgrade       = "upgrade_device"
	OpRepair        = "repair_device"
	OpUpgradeRoom   = "upgrade_room"
	OpRemove        = "remove_device"
	OpRecycle       = "recycle_device"
	OpClaimStreak   = "claim_streak"
	OpUnlockUpgrade = "unlock_meta_upgrade"
)

// act validates and applies fn to a copy of the player, persists the copy and
// only then makes it the session's state. A rule violation or a failed write
// leaves the session untouched.
func (s *Session) act(ctx context.Context, op string, fn func(next *models.Player, now time.Time) error) error {
	return s.call(ctx, func(ctx context.Context) error {
		now := s.deps.Now()
		next := s.state.Clone()
		if err := fn(next, now); err != nil {
			s.logger.Debug("Action rejected", zap.String("op", op), zap.Error(err))
			return err
		}
		if err := s.commit(ctx, op, next, now); err != nil {
			return err
		}
		s.publishLeaderboard(ctx, false)
		return nil
	})
}

func (s *Session) commit(ctx context.Context, op string, next *models.Player, now time.Time) error {
	for _, id := range unlockAchievements(next, s.deps.Catalog, now) {
		s.logger.Info("Achievement unlocked", zap.String("achievement", id))
	}
	if err := s.w.writeSync(ctx, models.FullPatch(next)); err != nil {
		s.logger.Error("Action not applied, persist failed", zap.String("op", op), zap.Error(err))
		return &PersistenceError{Op: op, Err: err}
	}
	s.state = next
	s.deps.Counter.Count(op)
	s.publishView(now)
	return nil
}

// Claim moves the unclaimed balance into the spendable balance and returns the
// amount moved. A second claim straight after the first moves nothing.
func (s *Session) Claim(ctx context.Context) (float64, error) {
	var amount float64
	err := s.act(ctx, OpClaim, func(next *models.Player, now time.Time) error {
		amount = next.Unclaimed
		next.Balance += amount
		next.TotalEarned += amount
		next.Unclaimed = 0
		next.LastAccrualAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	if amount > 0 {
		rec := models.ClaimRecord{Wallet: s.wallet, Amount: amount, Timestamp: s.deps.Now()}
		if err := s.deps.Store.AppendClaim(ctx, rec); err != nil {
			s.logger.Warn("Claim ledger append failed", zap.Float64("amount", amount), zap.Error(err))
		}
	}
	return amount, nil
}

// BuyDevice places a new level 1 device of the template in slot.
func (s *Session) BuyDevice(ctx context.Context, templateID, slot int) (miner.Device, error) {
	var placed miner.Device
	err := s.act(ctx, OpBuy, func(next *models.Player, now time.Time) error {
		t, ok := s.deps.Catalog.Template(templateID)
		if !ok {
			return fmt.Errorf("template %d: %w", templateID, ErrNotFound)
		}
		room := s.deps.Catalog.Room(next.RoomLevel)
		if slot < 0 || slot >= room.MaxSlots {
			return fmt.Errorf("slot %d outside room of %d slots: %w", slot, room.MaxSlots, ErrValidation)
		}
		if next.Balance < t.Price {
			return ErrInsufficientFunds
		}
		if miner.SlotTaken(next.Devices, slot) {
			return ErrSlotOccupied
		}
		if s.deps.Catalog.UsedWatts(next.Devices)+t.Watts > room.MaxPower {
			return ErrPowerLimitExceeded
		}
		placed = miner.Device{
			InstanceID: s.deps.NewID(),
			TemplateID: t.ID,
			Position:   slot,
			Level:      1,
			Durability: miner.MaxDurability,
		}
		next.Balance -= t.Price
		next.Devices = append(next.Devices, placed)
		return nil
	})
	return placed, err
}

// UpgradeDevice raises a device one level, spending its XP and currency.
func (s *Session) UpgradeDevice(ctx context.Context, instanceID string) (miner.Device, error) {
	var upgraded miner.Device
	err := s.act(ctx, OpUpgrade, func(next *models.Player, now time.Time) error {
		i, t, err := s.device(next, instanceID)
		if err != nil {
			return err
		}
		d := next.Devices[i]
		if d.Level >= t.MaxLevel {
			return ErrMaxLevelReached
		}
		need := miner.XPToNext(d)
		if d.XP < need {
			return ErrInsufficientXP
		}
		cost := miner.UpgradeCost(t, d)
		if next.Balance < cost {
			return ErrInsufficientFunds
		}
		d.Level++
		d.XP -= need
		next.Balance -= cost
		next.Devices[i] = d
		upgraded = d
		return nil
	})
	return upgraded, err
}

// RepairDevice restores a device to full durability and clears overheating.
func (s *Session) RepairDevice(ctx context.Context, instanceID string) (miner.Device, error) {
	var repaired miner.Device
	err := s.act(ctx, OpRepair, func(next *models.Player, now time.Time) error {
		i, t, err := s.device(next, instanceID)
		if err != nil {
			return err
		}
		d := next.Devices[i]
		if d.Durability >= miner.MaxDurability && !d.Overheated {
			return ErrAlreadyFullDurability
		}
		cost := miner.RepairCost(t, d)
		if next.Balance < cost {
			return ErrInsufficientFunds
		}
		d.Durability = miner.MaxDurability
		d.Overheated = false
		next.Balance -= cost
		next.Devices[i] = d
		repaired = d
		return nil
	})
	return repaired, err
}

// UpgradeRoom moves the player to the next room level. Devices are re-mapped
// into the new grid and any that do not fit are dropped.
func (s *Session) UpgradeRoom(ctx context.Context) (miner.Room, error) {
	var room miner.Room
	err := s.act(ctx, OpUpgradeRoom, func(next *models.Player, now time.Time) error {
		r, ok := s.deps.Catalog.NextRoom(next.RoomLevel)
		if !ok {
			return ErrNoNextLevel
		}
		if next.Balance < r.UpgradeCost {
			return ErrInsufficientFunds
		}
		before := len(next.Devices)
		next.Balance -= r.UpgradeCost
		next.RoomLevel = r.Level
		next.Devices = miner.FitToRoom(next.Devices, r)
		if dropped := before - len(next.Devices); dropped > 0 {
			s.logger.Warn("Room upgrade dropped devices", zap.Int("dropped", dropped))
		}
		room = r
		return nil
	})
	return room, err
}

// RemoveDevice takes a device off the grid without a refund.
func (s *Session) RemoveDevice(ctx context.Context, instanceID string) error {
	return s.act(ctx, OpRemove, func(next *models.Player, now time.Time) error {
		i := miner.Find(next.Devices, instanceID)
		if i < 0 {
			return fmt.Errorf("device %s: %w", instanceID, ErrNotFound)
		}
		next.Devices = append(next.Devices[:i], next.Devices[i+1:]...)
		return nil
	})
}

// RecycleDevice removes a device and refunds part of its template price. It
// returns the refund.
func (s *Session) RecycleDevice(ctx context.Context, instanceID string) (float64, error) {
	var refund float64
	err := s.act(ctx, OpRecycle, func(next *models.Player, now time.Time) error {
		i, t, err := s.device(next, instanceID)
		if err != nil {
			return err
		}
		refund = math.Floor(t.Price * s.params.RecycleRefundRatio)
		next.Balance += refund
		next.Devices = append(next.Devices[:i], next.Devices[i+1:]...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}

// ClaimStreak pays the daily streak reward once per UTC day.
func (s *Session) ClaimStreak(ctx context.Context) (float64, error) {
	var reward float64
	err := s.act(ctx, OpClaimStreak, func(next *models.Player, now time.Time) error {
		today := dayKey(now)
		if next.StreakClaimedDay == today {
			return ErrAlreadyClaimed
		}
		advanceStreak(next, now)
		reward = s.params.StreakReward
		next.Balance += reward
		next.StreakClaimedDay = today
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reward, nil
}

// UnlockMetaUpgrade spends player XP on a permanent perk.
func (s *Session) UnlockMetaUpgrade(ctx context.Context, id string) error {
	return s.act(ctx, OpUnlockUpgrade, func(next *models.Player, now time.Time) error {
		m, ok := metaUpgrade(id)
		if !ok {
			return fmt.Errorf("meta upgrade %q: %w", id, ErrNotFound)
		}
		if next.MetaUpgrades[id] {
			return ErrAlreadyUnlocked
		}
		if next.XP < m.Cost {
			return ErrInsufficientXP
		}
		next.XP -= m.Cost
		next.MetaUpgrades[id] = true
		return nil
	})
}

func (s *Session) device(p *models.Player, instanceID string) (int, miner.Template, error) {
	i := miner.Find(p.Devices, instanceID)
	if i < 0 {
		return -1, miner.Template{}, fmt.Errorf("device %s: %w", instanceID, ErrNotFound)
	}
	t, ok := s.deps.Catalog.Template(p.Devices[i].TemplateID)
	if !ok {
		return -1, miner.Template{}, fmt.Errorf("template %d: %w", p.Devices[i].TemplateID, ErrNotFound)
	}
	return i, t, nil
}
