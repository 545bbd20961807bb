// Package authority serves session issuance and revocation over gRPC.
package authority

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"

	"github.com/niczy/zombies/internal/gameerr"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/wire"
	"github.com/niczy/zombies/internal/session"
)

type authorityServer struct {
	issuer  *session.Issuer
	program models.Pubkey
	skew    time.Duration
	replay  wire.ReplayCache
	now     func() time.Time
}

func newAuthorityServer(issuer *session.Issuer, program models.Pubkey, skew time.Duration, replay wire.ReplayCache, now func() time.Time) *authorityServer {
	if skew <= 0 {
		skew = wire.DefaultMaxClockSkew
	}
	if now == nil {
		now = time.Now
	}
	if replay == nil {
		replay = wire.NewMemoryReplayCache(nil)
	}
	return &authorityServer{issuer: issuer, program: program, skew: skew, replay: replay, now: now}
}

// NewGRPCServer constructs a gRPC server issuing sessions that target program.
// A nil replay cache keeps accepted signatures in process memory.
func NewGRPCServer(issuer *session.Issuer, program models.Pubkey, skew time.Duration, replay wire.ReplayCache, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterAuthorityServer(srv, newAuthorityServer(issuer, program, skew, replay, nil))
	return srv
}

// NewService constructs the authority service implementation for use without gRPC.
func NewService(issuer *session.Issuer, program models.Pubkey, skew time.Duration, replay wire.ReplayCache, now func() time.Time) AuthorityServer {
	return newAuthorityServer(issuer, program, skew, replay, now)
}

// verifyOwner checks the envelope and that the owner signed it directly, then
// claims its signature.
func (s *authorityServer) verifyOwner(ctx context.Context, op string, auth wire.Auth, args ...uint64) (wire.Verified, error) {
	now := s.now()
	v, err := auth.Verify(op, now, s.skew, args...)
	if err != nil {
		return wire.Verified{}, err
	}
	if v.Signer != v.Owner {
		return wire.Verified{}, gameerr.ErrUnauthorized.With("signer %s is not owner %s", v.Signer, v.Owner)
	}
	if err := wire.Claim(ctx, s.replay, auth, now, s.skew); err != nil {
		return wire.Verified{}, err
	}
	return v, nil
}

func (s *authorityServer) IssueSession(ctx context.Context, req *IssueSessionRequest) (*IssueSessionResponse, error) {
	log.Printf("IssueSession called: owner=%s, session_signer=%s, ttl=%ds", req.Auth.Owner, req.Auth.Session, req.TTLSeconds)

	v, err := s.verifyOwner(ctx, OpIssueSession, req.Auth, req.TTLSeconds)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	signer, err := models.ParsePubkey(v.Session)
	if err != nil {
		return nil, wire.ToStatus(fmt.Errorf("%w: session signer: %v", wire.ErrMalformed, err))
	}
	if req.TTLSeconds == 0 {
		return nil, wire.ToStatus(fmt.Errorf("%w: ttl_seconds is required", wire.ErrMalformed))
	}

	token, grant, err := s.issuer.Issue(ctx, v.Owner, signer, s.program, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &IssueSessionResponse{
		Token:         token,
		SessionID:     grant.ID,
		SessionSigner: grant.SessionSigner.String(),
		TargetProgram: grant.TargetProgram.String(),
		ExpiresAt:     grant.ExpiresAt,
	}, nil
}

func (s *authorityServer) RevokeSession(ctx context.Context, req *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	log.Printf("RevokeSession called: owner=%s, session_id=%s", req.Auth.Owner, req.Auth.Session)

	v, err := s.verifyOwner(ctx, OpRevokeSession, req.Auth)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	grant, err := s.issuer.Grant(ctx, v.Session)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	if grant.Authority != v.Owner {
		return nil, wire.ToStatus(gameerr.ErrUnauthorized.With("session %s belongs to %s", grant.ID, grant.Authority))
	}
	if err := s.issuer.Revoke(ctx, grant.ID); err != nil {
		return nil, wire.ToStatus(fmt.Errorf("revoke session: %w", err))
	}

	revoked, err := s.issuer.Grant(ctx, grant.ID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	resp := &RevokeSessionResponse{SessionID: grant.ID}
	if revoked.RevokedAt != nil {
		resp.RevokedAt = *revoked.RevokedAt
	}
	return resp, nil
}
