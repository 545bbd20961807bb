package authority

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/niczy/zombies/internal/gameerr"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/wire"
	"github.com/niczy/zombies/internal/session"
)

var programID = models.Pubkey{0xee, 0x03}

func newKey(t *testing.T) (models.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	k, _ := models.PubkeyFromBytes(pub)
	return k, priv
}

func remoteCode(t *testing.T, err error) codes.Code {
	t.Helper()
	var re *wire.RemoteError
	if !errors.As(wire.FromStatus(err), &re) {
		t.Fatalf("expected status error, got %v", err)
	}
	return re.Code
}

func TestIssueAndRevokeSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	authPub, authPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	reg, err := session.OpenSQLiteRegistry(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteRegistry failed: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	issuer := session.NewIssuer("authority", authPriv, reg, 2*time.Hour, clock)
	verifier := session.NewVerifier("authority", authPub, reg, clock)
	srv := NewService(issuer, programID, time.Minute, nil, clock)

	owner, ownerKey := newKey(t)
	sessionKey, _ := newKey(t)
	stranger, strangerKey := newKey(t)

	issued, err := srv.IssueSession(ctx, &IssueSessionRequest{
		Auth:       wire.Sign(ownerKey, owner, sessionKey.String(), now, OpIssueSession, 3600),
		TTLSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if issued.TargetProgram != programID.String() || !issued.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected session: %+v", issued)
	}

	tok, err := verifier.Verify(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if tok.Authority != owner || tok.SessionSigner != sessionKey || tok.TargetProgram != programID {
		t.Fatalf("token bound to the wrong parties: %+v", tok)
	}

	t.Run("signed by someone else", func(t *testing.T) {
		_, err := srv.IssueSession(ctx, &IssueSessionRequest{
			Auth:       wire.Sign(strangerKey, owner, sessionKey.String(), now, OpIssueSession, 60),
			TTLSeconds: 60,
		})
		if code := remoteCode(t, err); code != codes.PermissionDenied {
			t.Fatalf("expected PermissionDenied, got %s", code)
		}
	})

	t.Run("ttl not signed", func(t *testing.T) {
		_, err := srv.IssueSession(ctx, &IssueSessionRequest{
			Auth:       wire.Sign(ownerKey, owner, sessionKey.String(), now, OpIssueSession, 60),
			TTLSeconds: 86400,
		})
		if code := remoteCode(t, err); code != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %s", code)
		}
	})

	t.Run("revoke by stranger", func(t *testing.T) {
		_, err := srv.RevokeSession(ctx, &RevokeSessionRequest{
			Auth: wire.Sign(strangerKey, stranger, issued.SessionID, now, OpRevokeSession),
		})
		if !errors.Is(wire.FromStatus(err), gameerr.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("revoke unknown", func(t *testing.T) {
		_, err := srv.RevokeSession(ctx, &RevokeSessionRequest{
			Auth: wire.Sign(ownerKey, owner, "missing", now, OpRevokeSession),
		})
		if code := remoteCode(t, err); code != codes.NotFound {
			t.Fatalf("expected NotFound, got %s", code)
		}
	})

	revoked, err := srv.RevokeSession(ctx, &RevokeSessionRequest{
		Auth: wire.Sign(ownerKey, owner, issued.SessionID, now, OpRevokeSession),
	})
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.SessionID != issued.SessionID || !revoked.RevokedAt.Equal(now) {
		t.Fatalf("unexpected revocation: %+v", revoked)
	}
	if _, err := verifier.Verify(ctx, issued.Token); !errors.Is(err, session.ErrRevoked) {
		t.Fatalf("expected ErrRevoked after revocation, got %v", err)
	}
}
