package models

// MaxZombies is the fixed roster capacity of an army.
const MaxZombies = 8

// ZombieKindBit marks a DNA value as zombie kind; its leading hex digit becomes 1.
const ZombieKindBit uint64 = 0x1000000000000000

// kindMask covers the top hex digit of a DNA value.
const kindMask uint64 = 0xF000000000000000

// Zombie is one roster slot. A zero DNA means the slot is empty.
type Zombie struct {
	DNA       uint64 `json:"dna"`
	LastFight int64  `json:"last_fight"`
	XP        uint8  `json:"xp"`
}

// Occupied reports whether the slot holds a zombie.
func (z Zombie) Occupied() bool { return z.DNA != 0 }

// ZombieFromDNA turns any DNA value into zombie-kind DNA.
func ZombieFromDNA(dna uint64) Zombie {
	return Zombie{DNA: ZombieDNA(dna)}
}

// ZombieDNA replaces the top hex digit of dna with the zombie kind digit.
func ZombieDNA(dna uint64) uint64 {
	return dna&^kindMask | ZombieKindBit
}

// Army is the per-owner roster account.
type Army struct {
	Owner   Pubkey             `json:"owner"`
	Zombies [MaxZombies]Zombie `json:"zombies"`
}

// EmptySlot returns the index of the first empty slot.
func (a *Army) EmptySlot() (int, bool) {
	for i, z := range a.Zombies {
		if !z.Occupied() {
			return i, true
		}
	}
	return 0, false
}

// Count returns how many slots are occupied.
func (a *Army) Count() int {
	n := 0
	for _, z := range a.Zombies {
		if z.Occupied() {
			n++
		}
	}
	return n
}
