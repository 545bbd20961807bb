package storage

import (
	"context"
	"errors"

	"github.com/niczy/zombies/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrConflict        = errors.New("account changed by a concurrent transaction")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEntryNotFound   = errors.New("entry not found")
)

// ArmyWrite replaces the army at Address with Next. Prev is the state Next was
// computed from; a nil Prev means the account must not exist yet.
type ArmyWrite struct {
	Address models.Address
	Prev    *models.Army
	Next    *models.Army
}

// BattleWrite creates a new receipt at Address.
type BattleWrite struct {
	Address models.Address
	Battle  *models.Battle
}

// Tx is the set of account writes committed by one program operation.
type Tx struct {
	Armies  []ArmyWrite
	Battles []BattleWrite
}

// Storage is the account runtime the program reads and writes through.
// Commit applies a Tx all-or-nothing: it fails with ErrAccountExists when an
// account that must be new already exists, and with ErrConflict when an army
// no longer matches its Prev state.
type Storage interface {
	GetArmy(ctx context.Context, addr models.Address) (*models.Army, error)
	GetBattle(ctx context.Context, addr models.Address) (*models.Battle, error)
	Commit(ctx context.Context, tx *Tx) error

	// Health check
	Ping(ctx context.Context) error
}

func validateTx(tx *Tx) error {
	if tx == nil || (len(tx.Armies) == 0 && len(tx.Battles) == 0) {
		return ErrInvalidInput
	}
	seen := make(map[models.Address]bool, len(tx.Armies)+len(tx.Battles))
	for _, w := range tx.Armies {
		if w.Next == nil || seen[w.Address] {
			return ErrInvalidInput
		}
		seen[w.Address] = true
	}
	for _, w := range tx.Battles {
		if w.Battle == nil || seen[w.Address] {
			return ErrInvalidInput
		}
		seen[w.Address] = true
	}
	return nil
}

// checkArmy compares the stored encoding of an army with the state a write
// was computed from.
func checkArmy(current []byte, exists bool, w ArmyWrite) error {
	if w.Prev == nil {
		if exists {
			return ErrAccountExists
		}
		return nil
	}
	if !exists || string(current) != string(models.EncodeArmy(w.Prev)) {
		return ErrConflict
	}
	return nil
}
