package arena

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/game"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/wire"
	"github.com/niczy/zombies/internal/session"
	"github.com/niczy/zombies/internal/storage"
)

var programID = models.Pubkey{0xee, 0x02}

type testKey struct {
	pub  models.Pubkey
	priv ed25519.PrivateKey
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	k, _ := models.PubkeyFromBytes(pub)
	return testKey{pub: k, priv: priv}
}

type harness struct {
	client *Client
	issuer *session.Issuer
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	authPub, authPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	reg := session.NewMemoryRegistry()
	gate := access.NewGate(programID, session.NewVerifier("authority", authPub, reg, nil))
	program := game.New(game.Config{ProgramID: programID}, storage.NewInMemoryStorage(), gate)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(program, time.Minute, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		client: NewClient(conn),
		issuer: session.NewIssuer("authority", authPriv, reg, 0, nil),
		now:    time.Now(),
	}
}

func humanCards(base uint64) [models.Cards]uint64 {
	return [models.Cards]uint64{0x20000000000000 + base, 0x20000000000000 + base + 1, 0x20000000000000 + base + 2}
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	var re *wire.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError with %s, got %v", want, err)
	}
	if re.Code != want {
		t.Fatalf("expected %s, got %s (%s)", want, re.Code, re.Message)
	}
}

func TestArenaOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := newTestKey(t)

	initResp, err := h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", h.now, OpInitArmy)})
	if err != nil {
		t.Fatalf("InitArmy failed: %v", err)
	}
	if initResp.Army.Owner != owner.pub || initResp.Army.Zombies[0].DNA == 0 {
		t.Fatalf("unexpected army: %+v", initResp.Army)
	}

	_, err = h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", h.now.Add(time.Millisecond), OpInitArmy)})
	expectCode(t, err, codes.AlreadyExists)
	if !errors.Is(err, game.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	cards := humanCards(10)
	battle, err := h.client.Battle(ctx, &BattleRequest{
		Auth:      wire.Sign(owner.priv, owner.pub, "", h.now, OpBattle, BattleArgs(0, 2, cards)...),
		ZombieID:  0,
		Selection: 2,
		DNA:       cards,
	})
	if err != nil {
		t.Fatalf("Battle failed: %v", err)
	}
	if battle.Battle.Outcome != models.BattleOutcomeWon || battle.Army.Zombies[1].DNA == 0 {
		t.Fatalf("expected a win adding slot 1, got %+v", battle)
	}

	again := humanCards(20)
	_, err = h.client.Battle(ctx, &BattleRequest{
		Auth:      wire.Sign(owner.priv, owner.pub, "", h.now, OpBattle, BattleArgs(0, 2, again)...),
		ZombieID:  0,
		Selection: 2,
		DNA:       again,
	})
	expectCode(t, err, codes.FailedPrecondition)
	if !errors.Is(err, game.ErrZombieNotReady) {
		t.Fatalf("expected ErrZombieNotReady, got %v", err)
	}

	got, err := h.client.GetBattle(ctx, &GetBattleRequest{Owner: owner.pub.String(), DNA: cards})
	if err != nil {
		t.Fatalf("GetBattle failed: %v", err)
	}
	if got.Battle.Selection != 2 || got.Address != battle.Address {
		t.Fatalf("unexpected receipt: %+v", got)
	}

	armyResp, err := h.client.GetArmy(ctx, &GetArmyRequest{Owner: owner.pub.String()})
	if err != nil {
		t.Fatalf("GetArmy failed: %v", err)
	}
	if armyResp.Army.Count() != 2 || armyResp.Address != initResp.Address {
		t.Fatalf("unexpected army: %+v", armyResp)
	}
}

func TestArenaSessionsOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := newTestKey(t)
	stranger := newTestKey(t)
	sessionKey := newTestKey(t)

	if _, err := h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", h.now, OpInitArmy)}); err != nil {
		t.Fatalf("InitArmy failed: %v", err)
	}

	// A stranger signing for the owner is refused.
	_, err := h.client.RemoveZombie(ctx, &RemoveZombieRequest{
		Auth:     wire.Sign(stranger.priv, owner.pub, "", h.now, OpRemoveZombie, 0),
		ZombieID: 0,
	})
	expectCode(t, err, codes.PermissionDenied)

	// A session bound to another owner is refused.
	foreign, _, err := h.issuer.Issue(ctx, stranger.pub, sessionKey.pub, programID, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, err = h.client.RemoveZombie(ctx, &RemoveZombieRequest{
		Auth:     wire.Sign(sessionKey.priv, owner.pub, foreign, h.now, OpRemoveZombie, 0),
		ZombieID: 0,
	})
	expectCode(t, err, codes.PermissionDenied)

	// A session for the owner works.
	token, _, err := h.issuer.Issue(ctx, owner.pub, sessionKey.pub, programID, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	resp, err := h.client.RemoveZombie(ctx, &RemoveZombieRequest{
		Auth:     wire.Sign(sessionKey.priv, owner.pub, token, h.now, OpRemoveZombie, 0),
		ZombieID: 0,
	})
	if err != nil {
		t.Fatalf("RemoveZombie failed: %v", err)
	}
	if resp.Army.Zombies[0].DNA != 0 {
		t.Fatalf("expected slot 0 cleared, got %x", resp.Army.Zombies[0].DNA)
	}

	// A session cannot initialize an army.
	_, err = h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(sessionKey.priv, sessionKey.pub, token, h.now, OpInitArmy)})
	expectCode(t, err, codes.PermissionDenied)
}

func TestArenaRejectsBadEnvelopes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := newTestKey(t)

	// Signed for zombie 0, sent for zombie 1.
	_, err := h.client.RemoveZombie(ctx, &RemoveZombieRequest{
		Auth:     wire.Sign(owner.priv, owner.pub, "", h.now, OpRemoveZombie, 0),
		ZombieID: 1,
	})
	expectCode(t, err, codes.Unauthenticated)

	_, err = h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", h.now.Add(-time.Hour), OpInitArmy)})
	expectCode(t, err, codes.Unauthenticated)

	_, err = h.client.GetArmy(ctx, &GetArmyRequest{Owner: "not-hex"})
	expectCode(t, err, codes.InvalidArgument)

	_, err = h.client.GetArmy(ctx, &GetArmyRequest{Owner: owner.pub.String()})
	expectCode(t, err, codes.NotFound)
}

func TestArenaRejectsReplayedRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := newTestKey(t)

	if _, err := h.client.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", h.now, OpInitArmy)}); err != nil {
		t.Fatalf("InitArmy failed: %v", err)
	}
	cards := humanCards(40)
	if _, err := h.client.Battle(ctx, &BattleRequest{
		Auth:      wire.Sign(owner.priv, owner.pub, "", h.now, OpBattle, BattleArgs(0, 0, cards)...),
		Selection: 0,
		DNA:       cards,
	}); err != nil {
		t.Fatalf("Battle failed: %v", err)
	}

	remove := &RemoveZombieRequest{
		Auth:     wire.Sign(owner.priv, owner.pub, "", h.now, OpRemoveZombie, 1),
		ZombieID: 1,
	}
	if _, err := h.client.RemoveZombie(ctx, remove); err != nil {
		t.Fatalf("RemoveZombie failed: %v", err)
	}

	// The same signed request may not be presented again.
	_, err := h.client.RemoveZombie(ctx, remove)
	expectCode(t, err, codes.Unauthenticated)

	armyResp, err := h.client.GetArmy(ctx, &GetArmyRequest{Owner: owner.pub.String()})
	if err != nil {
		t.Fatalf("GetArmy failed: %v", err)
	}
	if armyResp.Army.Count() != 1 {
		t.Fatalf("expected only the first zombie to remain, got %+v", armyResp.Army)
	}
}

func TestServiceWithoutGRPC(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	program := game.New(game.Config{ProgramID: programID}, storage.NewInMemoryStorage(), nil)
	srv := NewService(program, time.Minute, nil, func() time.Time { return now })
	owner := newTestKey(t)

	if _, err := srv.InitArmy(ctx, &InitArmyRequest{Auth: wire.Sign(owner.priv, owner.pub, "", now, OpInitArmy)}); err != nil {
		t.Fatalf("InitArmy failed: %v", err)
	}
	cards := humanCards(1)
	_, err := srv.Battle(ctx, &BattleRequest{
		Auth:     wire.Sign(owner.priv, owner.pub, "", now, OpBattle, BattleArgs(300, 0, cards)...),
		ZombieID: 300,
		DNA:      cards,
	})
	if !errors.Is(wire.FromStatus(err), game.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}
