package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/niczy/zombies/internal/models"
)

var (
	ErrGrantNotFound = errors.New("session grant not found")
	ErrGrantExists   = errors.New("session grant already exists")
)

// Grant is the registry record of an issued session token.
type Grant struct {
	ID            string
	Authority     models.Pubkey
	SessionSigner models.Pubkey
	TargetProgram models.Pubkey
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
}

// Revoked reports whether the grant has been revoked.
func (g Grant) Revoked() bool { return g.RevokedAt != nil }

// Registry stores issued grants and their revocation state.
type Registry interface {
	Record(ctx context.Context, grant Grant) error
	Revoke(ctx context.Context, id string, at time.Time) error
	Lookup(ctx context.Context, id string) (Grant, error)
}

// MemoryRegistry is a Registry kept in process memory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryRegistry constructs an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{grants: make(map[string]Grant)}
}

func (r *MemoryRegistry) Record(ctx context.Context, grant Grant) error {
	if strings.TrimSpace(grant.ID) == "" {
		return errors.New("grant id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grants[grant.ID]; ok {
		return ErrGrantExists
	}
	r.grants[grant.ID] = grant
	return nil
}

// Revoke is idempotent; the first revocation time is kept.
func (r *MemoryRegistry) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant, ok := r.grants[id]
	if !ok {
		return ErrGrantNotFound
	}
	if grant.RevokedAt == nil {
		at = at.UTC()
		grant.RevokedAt = &at
		r.grants[id] = grant
	}
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, id string) (Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grant, ok := r.grants[id]
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return grant, nil
}
