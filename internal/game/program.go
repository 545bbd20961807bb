// Package game implements the zombies program: army initialization, zombie
// removal and battle resolution over an atomic account store.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/address"
	"github.com/niczy/zombies/internal/audit"
	"github.com/niczy/zombies/internal/gameerr"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/storage"
)

// DefaultRestInterval is how long a zombie rests after a battle.
const DefaultRestInterval = 60 * time.Second

var (
	ErrUnauthorized        = gameerr.ErrUnauthorized
	ErrInvalidToken        = gameerr.ErrInvalidToken
	ErrConstraintViolation = gameerr.ErrConstraintViolation
	ErrZombieNotReady      = gameerr.ErrZombieNotReady
	ErrDuplicateBattle     = gameerr.ErrDuplicateBattle
	ErrAlreadyInitialized  = gameerr.ErrAlreadyInitialized
	ErrIndexOutOfRange     = gameerr.ErrIndexOutOfRange
	ErrInvalidZombieID     = gameerr.ErrInvalidZombieID
	ErrInvalidSelection    = gameerr.ErrInvalidSelection
	ErrNoEmptySlot         = gameerr.ErrNoEmptySlot
	ErrArithmeticOverflow  = gameerr.ErrArithmeticOverflow
	ErrArmyNotFound        = gameerr.ErrArmyNotFound
	ErrBattleNotFound      = gameerr.ErrBattleNotFound
)

// Clock supplies the time used for cooldowns and receipts.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AuditSink receives one entry per committed operation.
type AuditSink interface {
	Record(e audit.Entry) error
}

// Config holds the program identity and tuning.
type Config struct {
	ProgramID    models.Pubkey
	RestInterval time.Duration
}

// Program executes operations against one storage backend.
type Program struct {
	id    models.Pubkey
	rest  time.Duration
	store storage.Storage
	gate  *access.Gate
	clock Clock
	audit AuditSink
}

// Option customizes a Program.
type Option func(*Program)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Program) { p.clock = c }
}

// WithAudit records committed operations to sink.
func WithAudit(sink AuditSink) Option {
	return func(p *Program) { p.audit = sink }
}

// New builds a program. A nil gate accepts only directly signed calls.
func New(cfg Config, st storage.Storage, gate *access.Gate, opts ...Option) *Program {
	if gate == nil {
		gate = access.NewGate(cfg.ProgramID, nil)
	}
	rest := cfg.RestInterval
	if rest <= 0 {
		rest = DefaultRestInterval
	}
	p := &Program{
		id:    cfg.ProgramID,
		rest:  rest,
		store: st,
		gate:  gate,
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the program identity sessions must target.
func (p *Program) ID() models.Pubkey { return p.id }

// RestInterval returns the configured cooldown.
func (p *Program) RestInterval() time.Duration { return p.rest }

// ArmyAddress returns where owner's army lives.
func (p *Program) ArmyAddress(owner models.Pubkey) models.Address {
	return address.Army(p.id, owner)
}

// BattleAddress returns where the receipt for the tuple lives.
func (p *Program) BattleAddress(owner models.Pubkey, dna [models.Cards]uint64) models.Address {
	return address.Battle(p.id, owner, dna[0], dna[1], dna[2])
}

// GetArmy reads owner's army.
func (p *Program) GetArmy(ctx context.Context, owner models.Pubkey) (*models.Army, error) {
	army, err := p.store.GetArmy(ctx, p.ArmyAddress(owner))
	if err != nil {
		return nil, mapStorageError(err)
	}
	return army, nil
}

// GetBattle reads the receipt for (owner, dna1, dna2, dna3).
func (p *Program) GetBattle(ctx context.Context, owner models.Pubkey, dna [models.Cards]uint64) (*models.Battle, error) {
	b, err := p.store.GetBattle(ctx, p.BattleAddress(owner, dna))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrBattleNotFound.With("owner %s", owner)
		}
		return nil, fmt.Errorf("load battle: %w", err)
	}
	return b, nil
}

// loadOwnedArmy reads the army of the effective owner and checks its owner field.
func (p *Program) loadOwnedArmy(ctx context.Context, owner models.Pubkey) (models.Address, *models.Army, error) {
	addr := p.ArmyAddress(owner)
	army, err := p.store.GetArmy(ctx, addr)
	if err != nil {
		return addr, nil, mapStorageError(err)
	}
	if army.Owner != owner {
		return addr, nil, ErrConstraintViolation.With("army owner %s is not %s", army.Owner, owner)
	}
	return addr, army, nil
}

// retryOnConflict runs fn again once if its commit lost an optimistic race.
func retryOnConflict(op string, fn func() error) error {
	err := fn()
	if errors.Is(err, storage.ErrConflict) {
		log.Printf("%s: concurrent update, retrying", op)
		err = fn()
	}
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}

func (p *Program) record(e audit.Entry) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Record(e); err != nil {
		log.Printf("audit %s failed: %v", e.Op, err)
	}
}

func mapStorageError(err error) error {
	if errors.Is(err, storage.ErrAccountNotFound) {
		return ErrArmyNotFound.With("%v", err)
	}
	return fmt.Errorf("load army: %w", err)
}

func actorEntry(actor access.Actor) (string, bool) {
	if actor == nil {
		return "", false
	}
	_, delegated := actor.(access.Delegated)
	return actor.SignerKey().String(), delegated
}
