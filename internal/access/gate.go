// Package access resolves which principal's authority a mutating call carries.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/niczy/zombies/internal/gameerr"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/session"
)

// Actor is the signing side of a call: either the owner signing directly or a
// session signer presenting a delegation token.
type Actor interface {
	SignerKey() models.Pubkey
	actor()
}

// Direct is a call signed by the principal itself.
type Direct struct {
	Signer models.Pubkey
}

// Delegated is a call signed by a session key holding a token.
type Delegated struct {
	Signer models.Pubkey
	Token  string
}

func (d Direct) SignerKey() models.Pubkey    { return d.Signer }
func (d Delegated) SignerKey() models.Pubkey { return d.Signer }
func (Direct) actor()                        {}
func (Delegated) actor()                     {}

// TokenVerifier validates a raw session token at call time.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (session.Token, error)
}

// Gate authorizes calls for one program.
type Gate struct {
	program  models.Pubkey
	verifier TokenVerifier
}

// NewGate builds a gate. A nil verifier rejects every delegated call.
func NewGate(program models.Pubkey, verifier TokenVerifier) *Gate {
	return &Gate{program: program, verifier: verifier}
}

// Resolve returns the effective owner of a call declared for owner.
func (g *Gate) Resolve(ctx context.Context, owner models.Pubkey, actor Actor) (models.Pubkey, error) {
	switch a := actor.(type) {
	case Direct:
		if a.Signer.IsZero() || a.Signer != owner {
			return models.Pubkey{}, gameerr.ErrUnauthorized.With("signer %s is not owner %s", a.Signer, owner)
		}
		return owner, nil

	case Delegated:
		if g.verifier == nil {
			return models.Pubkey{}, gameerr.ErrInvalidToken.With("sessions are not enabled")
		}
		tok, err := g.verifier.Verify(ctx, a.Token)
		if err != nil {
			if errors.Is(err, session.ErrInvalid) {
				return models.Pubkey{}, gameerr.ErrInvalidToken.With("%v", err)
			}
			return models.Pubkey{}, fmt.Errorf("verify session token: %w", err)
		}
		if tok.Authority != owner {
			return models.Pubkey{}, gameerr.ErrUnauthorized.With("session authority %s is not owner %s", tok.Authority, owner)
		}
		if tok.SessionSigner != a.Signer {
			return models.Pubkey{}, gameerr.ErrInvalidToken.With("session is bound to signer %s", tok.SessionSigner)
		}
		if tok.TargetProgram != g.program {
			return models.Pubkey{}, gameerr.ErrInvalidToken.With("session targets program %s", tok.TargetProgram)
		}
		return owner, nil

	default:
		return models.Pubkey{}, gameerr.ErrUnauthorized.With("no signer")
	}
}
