package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/niczy/zombies/internal/models"
)

// KeyStore keeps named ed25519 keys for the CLI.
// Keys are stored as hex seeds under ~/.zombies/keys/<name>.
type KeyStore struct {
	root string
}

// NewKeyStore constructs a key store rooted at the default location.
func NewKeyStore() (*KeyStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	return newKeyStoreWithRoot(filepath.Join(home, ".zombies"))
}

func newKeyStoreWithRoot(root string) (*KeyStore, error) {
	keysDir := filepath.Join(root, "keys")
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return nil, err
	}

	return &KeyStore{root: root}, nil
}

func (k *KeyStore) keyPath(name string) string {
	return filepath.Join(k.root, "keys", name)
}

func checkName(name string) error {
	if name == "" {
		return errors.New("missing key name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid key name %q", name)
	}
	return nil
}

// Has returns true if a key with the given name exists.
func (k *KeyStore) Has(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}

	_, err := os.Stat(k.keyPath(name))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// Generate creates and stores a fresh key. Existing keys are never overwritten.
func (k *KeyStore) Generate(name string) (ed25519.PrivateKey, error) {
	exists, err := k.Has(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("key %q already exists", name)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := k.Store(name, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// Store writes key under name.
func (k *KeyStore) Store(name string, key ed25519.PrivateKey) error {
	if err := checkName(name); err != nil {
		return err
	}

	return os.WriteFile(k.keyPath(name), []byte(hex.EncodeToString(key.Seed())+"\n"), 0o600)
}

// Load reads the key stored under name.
func (k *KeyStore) Load(name string) (ed25519.PrivateKey, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(k.keyPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %q is corrupt", name)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Resolve turns a key name or a hex public key into a public key.
func (k *KeyStore) Resolve(nameOrHex string) (models.Pubkey, error) {
	if pub, err := models.ParsePubkey(nameOrHex); err == nil {
		return pub, nil
	}
	priv, err := k.Load(nameOrHex)
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("%q is neither a public key nor a stored key: %w", nameOrHex, err)
	}
	return publicKey(priv), nil
}

func publicKey(priv ed25519.PrivateKey) models.Pubkey {
	pub, _ := models.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	return pub
}
