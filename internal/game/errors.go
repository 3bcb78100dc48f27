package game

import (
	"errors"
	"fmt"
)

// Domain errors. Every action checks these before touching any state, so a
// returned domain error means nothing changed.
var (
	ErrValidation            = errors.New("invalid request")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientXP        = errors.New("insufficient xp")
	ErrMaxLevelReached       = errors.New("max level reached")
	ErrAlreadyFullDurability = errors.New("already at full durability")
	ErrSlotOccupied          = errors.New("slot occupied")
	ErrPowerLimitExceeded    = errors.New("power limit exceeded")
	ErrNoNextLevel           = errors.New("no next room level")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyUnlocked       = errors.New("already unlocked")
	ErrAlreadyClaimed        = errors.New("already claimed today")
	ErrSessionClosed         = errors.New("session closed")
	ErrPersistence           = errors.New("persistence failed")
)

// PersistenceError reports a store write that did not complete. The action
// that triggered it was not applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist player: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsDomainError reports whether err is a rule violation the caller can fix,
// as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrInsufficientFunds, ErrInsufficientXP, ErrMaxLevelReached,
		ErrAlreadyFullDurability, ErrSlotOccupied, ErrPowerLimitExceeded,
		ErrNoNextLevel, ErrNotFound, ErrAlreadyUnlocked, ErrAlreadyClaimed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
