package models

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Account discriminators written as field 1 of every encoded account.
const (
	ArmyDiscriminator   = "army"
	BattleDiscriminator = "battle"
)

var ErrDiscriminator = errors.New("account discriminator mismatch")

const (
	fieldDiscriminator protowire.Number = 1

	armyFieldOwner  protowire.Number = 2
	armyFieldZombie protowire.Number = 3

	zombieFieldDNA       protowire.Number = 1
	zombieFieldLastFight protowire.Number = 2
	zombieFieldXP        protowire.Number = 3

	battleFieldOwner     protowire.Number = 2
	battleFieldZombieID  protowire.Number = 3
	battleFieldSelection protowire.Number = 4
	battleFieldDNA       protowire.Number = 5
	battleFieldShuffled  protowire.Number = 6
	battleFieldOutcome   protowire.Number = 7
	battleFieldCreatedAt protowire.Number = 8
)

// EncodeArmy serializes an army in protobuf wire format. Every slot is written,
// empty ones included, so slot indexes survive a round trip.
func EncodeArmy(a *Army) []byte {
	b := protowire.AppendTag(nil, fieldDiscriminator, protowire.BytesType)
	b = protowire.AppendString(b, ArmyDiscriminator)
	b = protowire.AppendTag(b, armyFieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Owner[:])
	for _, z := range a.Zombies {
		b = protowire.AppendTag(b, armyFieldZombie, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeZombie(z))
	}
	return b
}

func encodeZombie(z Zombie) []byte {
	var b []byte
	b = protowire.AppendTag(b, zombieFieldDNA, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, z.DNA)
	b = protowire.AppendTag(b, zombieFieldLastFight, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(z.LastFight))
	b = protowire.AppendTag(b, zombieFieldXP, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(z.XP))
	return b
}

// DecodeArmy parses an army encoded by EncodeArmy.
func DecodeArmy(raw []byte) (*Army, error) {
	var (
		army  Army
		slot  int
		found bool
	)
	err := walkFields(raw, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch num {
		case fieldDiscriminator:
			if typ != protowire.BytesType || string(value) != ArmyDiscriminator {
				return ErrDiscriminator
			}
			found = true
		case armyFieldOwner:
			owner, err := PubkeyFromBytes(value)
			if err != nil {
				return err
			}
			army.Owner = owner
		case armyFieldZombie:
			if slot >= MaxZombies {
				return fmt.Errorf("army holds more than %d zombies", MaxZombies)
			}
			z, err := decodeZombie(value)
			if err != nil {
				return fmt.Errorf("zombie %d: %w", slot, err)
			}
			army.Zombies[slot] = z
			slot++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode army: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("decode army: %w", ErrDiscriminator)
	}
	return &army, nil
}

func decodeZombie(raw []byte) (Zombie, error) {
	var z Zombie
	err := walkFields(raw, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch num {
		case zombieFieldDNA:
			z.DNA = scalar
		case zombieFieldLastFight:
			z.LastFight = protowire.DecodeZigZag(scalar)
		case zombieFieldXP:
			if scalar > 0xff {
				return fmt.Errorf("xp %d out of range", scalar)
			}
			z.XP = uint8(scalar)
		}
		return nil
	})
	return z, err
}

// EncodeBattle serializes a battle receipt in protobuf wire format.
func EncodeBattle(bt *Battle) []byte {
	b := protowire.AppendTag(nil, fieldDiscriminator, protowire.BytesType)
	b = protowire.AppendString(b, BattleDiscriminator)
	b = protowire.AppendTag(b, battleFieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, bt.Owner[:])
	b = protowire.AppendTag(b, battleFieldZombieID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bt.ZombieID))
	b = protowire.AppendTag(b, battleFieldSelection, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bt.Selection))
	for _, dna := range bt.DNA {
		b = protowire.AppendTag(b, battleFieldDNA, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, dna)
	}
	for _, dna := range bt.ShuffledOrder {
		b = protowire.AppendTag(b, battleFieldShuffled, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, dna)
	}
	b = protowire.AppendTag(b, battleFieldOutcome, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bt.Outcome))
	b = protowire.AppendTag(b, battleFieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(bt.CreatedAt))
	return b
}

// DecodeBattle parses a receipt encoded by EncodeBattle.
func DecodeBattle(raw []byte) (*Battle, error) {
	var (
		bt              Battle
		dnaN, shuffledN int
		found           bool
	)
	err := walkFields(raw, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch num {
		case fieldDiscriminator:
			if typ != protowire.BytesType || string(value) != BattleDiscriminator {
				return ErrDiscriminator
			}
			found = true
		case battleFieldOwner:
			owner, err := PubkeyFromBytes(value)
			if err != nil {
				return err
			}
			bt.Owner = owner
		case battleFieldZombieID:
			bt.ZombieID = uint8(scalar)
		case battleFieldSelection:
			bt.Selection = uint8(scalar)
		case battleFieldDNA:
			if dnaN >= Cards {
				return fmt.Errorf("battle holds more than %d dna values", Cards)
			}
			bt.DNA[dnaN] = scalar
			dnaN++
		case battleFieldShuffled:
			if shuffledN >= Cards {
				return fmt.Errorf("battle holds more than %d shuffled values", Cards)
			}
			bt.ShuffledOrder[shuffledN] = scalar
			shuffledN++
		case battleFieldOutcome:
			bt.Outcome = BattleOutcome(scalar)
		case battleFieldCreatedAt:
			bt.CreatedAt = protowire.DecodeZigZag(scalar)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode battle: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("decode battle: %w", ErrDiscriminator)
	}
	return &bt, nil
}

// walkFields visits each field record. Length-delimited payloads arrive in
// value, varint and fixed64 payloads in scalar. Unknown wire types are skipped.
func walkFields(raw []byte, visit func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error) error {
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return protowire.ParseError(n)
		}
		raw = raw[n:]

		var (
			value  []byte
			scalar uint64
		)
		switch typ {
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(raw)
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(raw)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(raw)
		default:
			n = protowire.ConsumeFieldValue(num, typ, raw)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		raw = raw[n:]

		if err := visit(num, typ, value, scalar); err != nil {
			return err
		}
	}
	return nil
}
