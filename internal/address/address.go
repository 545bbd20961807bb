// Package address derives deterministic account addresses from seeds.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/niczy/zombies/internal/models"
)

const derivationMarker = "ProgramDerivedAddress"

// ArmySeed is the domain tag of army addresses.
const ArmySeed = "army"

// Derive hashes the seeds, the program id and a fixed marker into an address.
func Derive(program models.Pubkey, seeds ...[]byte) models.Address {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(derivationMarker))

	var out models.Address
	copy(out[:], h.Sum(nil))
	return out
}

// Army returns the address of owner's army.
func Army(program, owner models.Pubkey) models.Address {
	return Derive(program, []byte(ArmySeed), owner[:])
}

// Battle returns the address of the receipt for (user, dna1, dna2, dna3).
func Battle(program, user models.Pubkey, dna1, dna2, dna3 uint64) models.Address {
	return Derive(program, user[:], LE64(dna1), LE64(dna2), LE64(dna3))
}

// LE64 encodes v as 8 little-endian bytes.
func LE64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
