package game

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/audit"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/storage"
)

// InitArmy creates owner's army with one freshly derived zombie in slot 0.
// The caller must already have checked that owner signed the request.
func (p *Program) InitArmy(ctx context.Context, owner models.Pubkey) (*models.Army, error) {
	log.Printf("InitArmy called: owner=%s", owner)
	if owner.IsZero() {
		return nil, ErrUnauthorized.With("owner is required")
	}

	now := p.clock.Now()
	army := &models.Army{Owner: owner}
	army.Zombies[0] = models.Zombie{DNA: GenerateDNA(owner, now.Unix())}

	addr := p.ArmyAddress(owner)
	err := p.store.Commit(ctx, &storage.Tx{Armies: []storage.ArmyWrite{{Address: addr, Next: army}}})
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return nil, ErrAlreadyInitialized.With("army %s", addr)
		}
		return nil, fmt.Errorf("create army: %w", err)
	}

	p.record(audit.Entry{
		Time:   now,
		Op:     "init_army",
		Owner:  owner.String(),
		Signer: owner.String(),
		Army:   addr.String(),
	})
	return army, nil
}

// RemoveZombie clears slot index of owner's army. Clearing an empty slot succeeds
// without writing anything.
func (p *Program) RemoveZombie(ctx context.Context, owner models.Pubkey, actor access.Actor, index uint8) (*models.Army, error) {
	log.Printf("RemoveZombie called: owner=%s, index=%d", owner, index)

	effective, err := p.gate.Resolve(ctx, owner, actor)
	if err != nil {
		return nil, err
	}

	var result *models.Army
	var addr models.Address
	err = retryOnConflict("remove zombie", func() error {
		a, army, err := p.loadOwnedArmy(ctx, effective)
		if err != nil {
			return err
		}
		addr = a
		if int(index) >= models.MaxZombies {
			return ErrIndexOutOfRange.With("index %d, capacity %d", index, models.MaxZombies)
		}
		if !army.Zombies[index].Occupied() {
			result = army
			return nil
		}

		next := *army
		next.Zombies[index] = models.Zombie{}
		if err := p.store.Commit(ctx, &storage.Tx{Armies: []storage.ArmyWrite{{Address: addr, Prev: army, Next: &next}}}); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	signer, delegated := actorEntry(actor)
	p.record(audit.Entry{
		Time:      p.clock.Now(),
		Op:        "remove_zombie",
		Owner:     effective.String(),
		Signer:    signer,
		Delegated: delegated,
		Army:      addr.String(),
		ZombieID:  int(index),
	})
	return result, nil
}
