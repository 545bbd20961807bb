package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/audit"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/storage"
)

// BattleRequest names the zombie that fights, the card it picks and the three
// submitted DNA values.
type BattleRequest struct {
	Owner     models.Pubkey
	Actor     access.Actor
	ZombieID  uint8
	Selection uint8
	DNA       [models.Cards]uint64
}

// Battle resolves one contest and commits the roster update and the receipt
// together. Nothing is written when any check fails.
func (p *Program) Battle(ctx context.Context, req BattleRequest) (*models.Battle, error) {
	log.Printf("Battle called: owner=%s, zombie_id=%d, selection=%d, dna=%x", req.Owner, req.ZombieID, req.Selection, req.DNA)

	effective, err := p.gate.Resolve(ctx, req.Owner, req.Actor)
	if err != nil {
		return nil, err
	}

	var (
		receipt  *models.Battle
		armyAddr models.Address
		newSlot  *int
	)
	battleAddr := p.BattleAddress(effective, req.DNA)
	err = retryOnConflict("battle", func() error {
		a, army, err := p.loadOwnedArmy(ctx, effective)
		if err != nil {
			return err
		}
		armyAddr = a

		// The receipt address is claimed before any roster check.
		if _, err := p.store.GetBattle(ctx, battleAddr); err == nil {
			return ErrDuplicateBattle.With("battle %s", battleAddr)
		} else if !errors.Is(err, storage.ErrAccountNotFound) {
			return fmt.Errorf("load battle: %w", err)
		}

		if int(req.ZombieID) >= models.MaxZombies {
			return ErrIndexOutOfRange.With("zombie id %d, capacity %d", req.ZombieID, models.MaxZombies)
		}
		zombie := army.Zombies[req.ZombieID]
		if !zombie.Occupied() {
			return ErrInvalidZombieID.With("slot %d is empty", req.ZombieID)
		}
		if req.Selection >= models.Cards {
			return ErrInvalidSelection.With("selection %d", req.Selection)
		}

		now := p.clock.Now().Unix()
		if zombie.LastFight != 0 && time.Duration(now-zombie.LastFight)*time.Second < p.rest {
			return ErrZombieNotReady.With("rested %ds of %s", now-zombie.LastFight, p.rest)
		}

		res := Resolve(zombie.DNA, req.DNA, req.Selection)
		next := *army
		next.Zombies[req.ZombieID].LastFight = now
		newSlot = nil
		if res.Outcome == models.BattleOutcomeWon {
			if zombie.XP == math.MaxUint8 {
				return ErrArithmeticOverflow.With("zombie %d xp", req.ZombieID)
			}
			next.Zombies[req.ZombieID].XP++
			slot, ok := next.EmptySlot()
			if !ok {
				return ErrNoEmptySlot.With("army %s is full", armyAddr)
			}
			next.Zombies[slot] = models.ZombieFromDNA(res.Picked)
			newSlot = &slot
		}

		b := &models.Battle{
			Owner:         effective,
			ZombieID:      req.ZombieID,
			Selection:     req.Selection,
			DNA:           req.DNA,
			ShuffledOrder: res.Shuffled,
			Outcome:       res.Outcome,
			CreatedAt:     now,
		}
		tx := &storage.Tx{
			Armies:  []storage.ArmyWrite{{Address: armyAddr, Prev: army, Next: &next}},
			Battles: []storage.BattleWrite{{Address: battleAddr, Battle: b}},
		}
		if err := p.store.Commit(ctx, tx); err != nil {
			if errors.Is(err, storage.ErrAccountExists) {
				return ErrDuplicateBattle.With("battle %s", battleAddr)
			}
			return err
		}
		receipt = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Battle committed: owner=%s, zombie_id=%d, outcome=%s", effective, req.ZombieID, receipt.Outcome)
	signer, delegated := actorEntry(req.Actor)
	p.record(audit.Entry{
		Time:      p.clock.Now(),
		Op:        "battle",
		Owner:     effective.String(),
		Signer:    signer,
		Delegated: delegated,
		Army:      armyAddr.String(),
		Battle:    battleAddr.String(),
		ZombieID:  int(req.ZombieID),
		Outcome:   receipt.Outcome.String(),
		NewSlot:   newSlot,
	})
	return receipt, nil
}
