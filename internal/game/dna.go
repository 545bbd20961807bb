package game

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/niczy/zombies/internal/address"
	"github.com/niczy/zombies/internal/models"
)

// GenerateDNA derives the starting zombie of owner's army from the owner key
// and the creation time. The result always carries the zombie kind digit.
func GenerateDNA(owner models.Pubkey, unix int64) uint64 {
	h := sha256.New()
	h.Write(owner[:])
	h.Write(address.LE64(uint64(unix)))
	sum := h.Sum(nil)

	return models.ZombieDNA(binary.LittleEndian.Uint64(sum[:8]))
}

// LeadingHexDigit returns the most significant hex digit of v.
func LeadingHexDigit(v uint64) uint8 {
	for v >= 16 {
		v >>= 4
	}
	return uint8(v)
}

// IsZombieDNA reports whether dna reads as zombie kind.
func IsZombieDNA(dna uint64) bool {
	return LeadingHexDigit(dna) == 1
}

func xorshift64(x uint64) uint64 {
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return x
}

// Resolution is the outcome of one battle before it is committed.
type Resolution struct {
	Shuffled [models.Cards]uint64
	Picked   uint64
	Outcome  models.BattleOutcome
}

// Resolve shuffles the submitted cards by a rotation seeded from all four DNA
// values and reads the outcome off the selected card. Picking a zombie card
// loses; picking anything else wins.
func Resolve(zombieDNA uint64, cards [models.Cards]uint64, selection uint8) Resolution {
	h := sha256.New()
	h.Write(address.LE64(zombieDNA))
	for _, c := range cards {
		h.Write(address.LE64(c))
	}
	sum := h.Sum(nil)
	rot := int(xorshift64(binary.LittleEndian.Uint64(sum[:8])) % models.Cards)

	var res Resolution
	for i := range cards {
		res.Shuffled[i] = cards[(i+rot)%models.Cards]
	}
	res.Picked = res.Shuffled[selection%models.Cards]
	if IsZombieDNA(res.Picked) {
		res.Outcome = models.BattleOutcomeLost
	} else {
		res.Outcome = models.BattleOutcomeWon
	}
	return res
}
