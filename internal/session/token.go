// Package session issues and verifies delegation tokens that let a temporary
// signer act with an owner's authority against one program.
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/niczy/zombies/internal/models"
)

var (
	ErrInvalid     = errors.New("session token is invalid")
	ErrExpired     = fmt.Errorf("%w: expired", ErrInvalid)
	ErrNotYetValid = fmt.Errorf("%w: not active yet", ErrInvalid)
	ErrRevoked     = fmt.Errorf("%w: revoked", ErrInvalid)
)

// Token is a verified session delegation.
type Token struct {
	ID            string
	Authority     models.Pubkey
	SessionSigner models.Pubkey
	TargetProgram models.Pubkey
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// sessionClaims is the JWT payload of a session token.
type sessionClaims struct {
	jwt.RegisteredClaims
	Authority     string `json:"authority"`
	SessionSigner string `json:"session_signer"`
	TargetProgram string `json:"target_program"`
}

// Issuer signs session tokens and records them in a Registry.
type Issuer struct {
	name     string
	key      ed25519.PrivateKey
	registry Registry
	maxTTL   time.Duration
	now      func() time.Time
}

// NewIssuer constructs an issuer. A zero maxTTL leaves token lifetimes unbounded.
func NewIssuer(name string, key ed25519.PrivateKey, registry Registry, maxTTL time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{name: name, key: key, registry: registry, maxTTL: maxTTL, now: now}
}

// Issue signs a token letting signer act for authority against program for ttl.
func (i *Issuer) Issue(ctx context.Context, authority, signer, program models.Pubkey, ttl time.Duration) (string, Grant, error) {
	if len(i.key) != ed25519.PrivateKeySize || i.registry == nil {
		return "", Grant{}, errors.New("session issuer is not configured")
	}
	if authority.IsZero() || signer.IsZero() || program.IsZero() {
		return "", Grant{}, errors.New("authority, signer and program are required")
	}
	if ttl <= 0 {
		return "", Grant{}, errors.New("session ttl must be positive")
	}
	if i.maxTTL > 0 && ttl > i.maxTTL {
		ttl = i.maxTTL
	}

	now := i.now().UTC().Truncate(time.Second)
	grant := Grant{
		ID:            uuid.NewString(),
		Authority:     authority,
		SessionSigner: signer,
		TargetProgram: program,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   signer.String(),
			ID:        grant.ID,
			IssuedAt:  jwt.NewNumericDate(grant.IssuedAt),
			NotBefore: jwt.NewNumericDate(grant.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(grant.ExpiresAt),
		},
		Authority:     authority.String(),
		SessionSigner: signer.String(),
		TargetProgram: program.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return "", Grant{}, fmt.Errorf("sign session token: %w", err)
	}
	if err := i.registry.Record(ctx, grant); err != nil {
		return "", Grant{}, fmt.Errorf("record session grant: %w", err)
	}
	return signed, grant, nil
}

// Revoke marks a grant as no longer usable.
func (i *Issuer) Revoke(ctx context.Context, id string) error {
	return i.registry.Revoke(ctx, id, i.now().UTC())
}

// Grant returns the recorded grant with the given id.
func (i *Issuer) Grant(ctx context.Context, id string) (Grant, error) {
	return i.registry.Lookup(ctx, id)
}

// Verifier checks session tokens against the issuer key and the registry.
type Verifier struct {
	name     string
	key      ed25519.PublicKey
	registry Registry
	now      func() time.Time
}

// NewVerifier constructs a verifier for tokens signed by the named issuer.
func NewVerifier(name string, key ed25519.PublicKey, registry Registry, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{name: name, key: key, registry: registry, now: now}
}

// Verify parses raw, checks its signature and validity window, and confirms
// the grant is recorded and not revoked. Every failure wraps ErrInvalid.
func (v *Verifier) Verify(ctx context.Context, raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, fmt.Errorf("%w: token is required", ErrInvalid)
	}
	if len(v.key) != ed25519.PublicKeySize || v.registry == nil {
		return Token{}, errors.New("session verifier is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Token{}, mapJWTError(err)
	}

	if parsed.Issuer != v.name {
		return Token{}, fmt.Errorf("%w: issuer mismatch", ErrInvalid)
	}
	if parsed.ID == "" {
		return Token{}, fmt.Errorf("%w: jti is required", ErrInvalid)
	}
	if parsed.ExpiresAt == nil {
		return Token{}, fmt.Errorf("%w: exp is required", ErrInvalid)
	}

	now := v.now().UTC()
	if !parsed.ExpiresAt.Time.After(now) {
		return Token{}, ErrExpired
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time) {
		return Token{}, ErrNotYetValid
	}

	tok := Token{ID: parsed.ID, ExpiresAt: parsed.ExpiresAt.Time.UTC()}
	if parsed.IssuedAt != nil {
		tok.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if tok.Authority, err = models.ParsePubkey(parsed.Authority); err != nil {
		return Token{}, fmt.Errorf("%w: authority: %v", ErrInvalid, err)
	}
	if tok.SessionSigner, err = models.ParsePubkey(parsed.SessionSigner); err != nil {
		return Token{}, fmt.Errorf("%w: session signer: %v", ErrInvalid, err)
	}
	if tok.TargetProgram, err = models.ParsePubkey(parsed.TargetProgram); err != nil {
		return Token{}, fmt.Errorf("%w: target program: %v", ErrInvalid, err)
	}

	grant, err := v.registry.Lookup(ctx, tok.ID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return Token{}, fmt.Errorf("%w: unknown grant", ErrInvalid)
		}
		return Token{}, fmt.Errorf("lookup session grant: %w", err)
	}
	if grant.Revoked() {
		return Token{}, ErrRevoked
	}
	if grant.Authority != tok.Authority || grant.SessionSigner != tok.SessionSigner || grant.TargetProgram != tok.TargetProgram {
		return Token{}, fmt.Errorf("%w: grant mismatch", ErrInvalid)
	}
	return tok, nil
}

// mapJWTError translates jwt library errors to session errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return fmt.Errorf("%w: signature is invalid", ErrInvalid)
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return fmt.Errorf("%w: alg is invalid", ErrInvalid)
	}
	return fmt.Errorf("%w: malformed", ErrInvalid)
}
