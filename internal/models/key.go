package models

import (
	"encoding/hex"
	"fmt"
)

// Pubkey identifies a principal by its ed25519 public key.
type Pubkey [32]byte

// Address locates an account in storage.
type Address [32]byte

func (k Pubkey) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether the key is unset.
func (k Pubkey) IsZero() bool { return k == Pubkey{} }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// ParsePubkey decodes the hex text form of a public key.
func ParsePubkey(s string) (Pubkey, error) {
	var k Pubkey
	if err := decodeFixed(s, k[:]); err != nil {
		return Pubkey{}, fmt.Errorf("parse pubkey: %w", err)
	}
	return k, nil
}

// ParseAddress decodes the hex text form of an account address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := decodeFixed(s, a[:]); err != nil {
		return Address{}, fmt.Errorf("parse address: %w", err)
	}
	return a, nil
}

// PubkeyFromBytes copies a raw 32-byte key.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var k Pubkey
	if len(b) != len(k) {
		return Pubkey{}, fmt.Errorf("pubkey must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

func decodeFixed(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

func (k Pubkey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
