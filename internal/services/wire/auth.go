package wire

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/models"
)

// DefaultMaxClockSkew bounds how far a request timestamp may drift from server time.
const DefaultMaxClockSkew = 5 * time.Minute

var (
	ErrMalformed    = errors.New("malformed request")
	ErrBadSignature = errors.New("request signature is invalid")
	ErrStale        = errors.New("request timestamp is outside the accepted window")
)

// Auth is the signed part of every mutating request. Signature is the hex
// ed25519 signature by Signer over Payload(op, ...). Session carries the token
// of a delegated call; authority calls put the session they act on there.
type Auth struct {
	Owner       string `json:"owner"`
	Signer      string `json:"signer"`
	Session     string `json:"session,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
	Signature   string `json:"signature"`
}

// Payload is the canonical byte string signed for op. Args are the numeric
// operation arguments in declaration order.
func Payload(op string, owner, signer models.Pubkey, session string, timestampMs int64, args ...uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, op)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, owner[:])
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, signer[:])
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, session)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(timestampMs))
	for _, arg := range args {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, arg)
	}
	return b
}

// Sign builds an Auth for op signed by key. An empty session signs as the owner's
// own key; otherwise key is the session signer named in the token.
func Sign(key ed25519.PrivateKey, owner models.Pubkey, session string, now time.Time, op string, args ...uint64) Auth {
	signer, _ := models.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
	ts := now.UnixMilli()
	sig := ed25519.Sign(key, Payload(op, owner, signer, session, ts, args...))
	return Auth{
		Owner:       owner.String(),
		Signer:      signer.String(),
		Session:     session,
		TimestampMs: ts,
		Signature:   hex.EncodeToString(sig),
	}
}

// Verified is an Auth whose signature checked out.
type Verified struct {
	Owner   models.Pubkey
	Signer  models.Pubkey
	Session string
}

// Actor returns how the program should authorize the call.
func (v Verified) Actor() access.Actor {
	if v.Session != "" {
		return access.Delegated{Signer: v.Signer, Token: v.Session}
	}
	return access.Direct{Signer: v.Signer}
}

// Verify checks the signature over op and args and that the timestamp lies
// within skew of now.
func (a Auth) Verify(op string, now time.Time, skew time.Duration, args ...uint64) (Verified, error) {
	owner, err := models.ParsePubkey(a.Owner)
	if err != nil {
		return Verified{}, fmt.Errorf("%w: owner: %v", ErrMalformed, err)
	}
	signer, err := models.ParsePubkey(a.Signer)
	if err != nil {
		return Verified{}, fmt.Errorf("%w: signer: %v", ErrMalformed, err)
	}
	sig, err := hex.DecodeString(a.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return Verified{}, fmt.Errorf("%w: signature encoding", ErrMalformed)
	}

	delta := now.Sub(time.UnixMilli(a.TimestampMs))
	if delta > skew || delta < -skew {
		return Verified{}, fmt.Errorf("%w: off by %s", ErrStale, delta.Round(time.Second))
	}
	if !ed25519.Verify(ed25519.PublicKey(signer[:]), Payload(op, owner, signer, a.Session, a.TimestampMs, args...), sig) {
		return Verified{}, ErrBadSignature
	}
	return Verified{Owner: owner, Signer: signer, Session: a.Session}, nil
}
