package address

import (
	"testing"

	"github.com/niczy/zombies/internal/models"
)

func TestArmyAddressIsDeterministicPerOwner(t *testing.T) {
	program := models.Pubkey{0xaa}
	alice := models.Pubkey{1}
	bob := models.Pubkey{2}

	if Army(program, alice) != Army(program, alice) {
		t.Fatalf("expected identical inputs to derive the same address")
	}
	if Army(program, alice) == Army(program, bob) {
		t.Fatalf("expected different owners to derive different addresses")
	}
	if Army(program, alice) == Army(models.Pubkey{0xbb}, alice) {
		t.Fatalf("expected different programs to derive different addresses")
	}
}

func TestBattleAddressDependsOnEveryInput(t *testing.T) {
	program := models.Pubkey{0xaa}
	user := models.Pubkey{1}
	base := Battle(program, user, 10, 20, 30)

	if base != Battle(program, user, 10, 20, 30) {
		t.Fatalf("expected identical tuple to derive the same address")
	}

	variants := map[string]models.Address{
		"user": Battle(program, models.Pubkey{2}, 10, 20, 30),
		"dna1": Battle(program, user, 11, 20, 30),
		"dna2": Battle(program, user, 10, 21, 30),
		"dna3": Battle(program, user, 10, 20, 31),
		"swap": Battle(program, user, 20, 10, 30),
	}
	for name, addr := range variants {
		if addr == base {
			t.Fatalf("expected %s change to derive a different address", name)
		}
	}

	if Battle(program, user, 10, 20, 30) == Army(program, user) {
		t.Fatalf("battle and army addresses must not alias")
	}
}

func TestLE64(t *testing.T) {
	got := LE64(0x0102030405060708)
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LE64 byte %d: got %x want %x", i, got[i], want[i])
		}
	}
}
