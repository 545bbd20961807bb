package storage

import (
	"context"
	"sync"

	"github.com/niczy/zombies/internal/models"
)

// InMemoryStorage implements Storage with encoded accounts kept in a map
type InMemoryStorage struct {
	mu       sync.RWMutex
	accounts map[models.Address][]byte
}

// NewInMemoryStorage creates a new in-memory storage instance
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		accounts: make(map[models.Address][]byte),
	}
}

// GetArmy decodes the army stored at addr
func (s *InMemoryStorage) GetArmy(ctx context.Context, addr models.Address) (*models.Army, error) {
	s.mu.RLock()
	raw, ok := s.accounts[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return models.DecodeArmy(raw)
}

// GetBattle decodes the battle receipt stored at addr
func (s *InMemoryStorage) GetBattle(ctx context.Context, addr models.Address) (*models.Battle, error) {
	s.mu.RLock()
	raw, ok := s.accounts[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return models.DecodeBattle(raw)
}

// Commit applies every write of tx under one lock
func (s *InMemoryStorage) Commit(ctx context.Context, tx *Tx) error {
	if err := validateTx(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range tx.Armies {
		current, exists := s.accounts[w.Address]
		if err := checkArmy(current, exists, w); err != nil {
			return err
		}
	}
	for _, w := range tx.Battles {
		if _, exists := s.accounts[w.Address]; exists {
			return ErrAccountExists
		}
	}

	for _, w := range tx.Armies {
		s.accounts[w.Address] = models.EncodeArmy(w.Next)
	}
	for _, w := range tx.Battles {
		s.accounts[w.Address] = models.EncodeBattle(w.Battle)
	}
	return nil
}

// Ping checks if storage is accessible
func (s *InMemoryStorage) Ping(ctx context.Context) error {
	return nil
}
