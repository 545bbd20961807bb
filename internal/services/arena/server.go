// Package arena serves the zombies program over gRPC.
package arena

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"google.golang.org/grpc"

	"github.com/niczy/zombies/internal/game"
	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/wire"
)

type arenaServer struct {
	program *game.Program
	skew    time.Duration
	replay  wire.ReplayCache
	now     func() time.Time
}

func newArenaServer(p *game.Program, skew time.Duration, replay wire.ReplayCache, now func() time.Time) *arenaServer {
	if skew <= 0 {
		skew = wire.DefaultMaxClockSkew
	}
	if now == nil {
		now = time.Now
	}
	if replay == nil {
		replay = wire.NewMemoryReplayCache(nil)
	}
	return &arenaServer{program: p, skew: skew, replay: replay, now: now}
}

// NewGRPCServer constructs a gRPC server for the arena service backed by p.
// A nil replay cache keeps accepted signatures in process memory.
func NewGRPCServer(p *game.Program, skew time.Duration, replay wire.ReplayCache, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterArenaServer(srv, newArenaServer(p, skew, replay, nil))
	return srv
}

// NewService constructs the arena service implementation for use without gRPC.
func NewService(p *game.Program, skew time.Duration, replay wire.ReplayCache, now func() time.Time) ArenaServer {
	return newArenaServer(p, skew, replay, now)
}

// verify checks the envelope for op and claims its signature.
func (s *arenaServer) verify(ctx context.Context, op string, auth wire.Auth, args ...uint64) (wire.Verified, error) {
	now := s.now()
	v, err := auth.Verify(op, now, s.skew, args...)
	if err != nil {
		return wire.Verified{}, err
	}
	if err := wire.Claim(ctx, s.replay, auth, now, s.skew); err != nil {
		return wire.Verified{}, err
	}
	return v, nil
}

func (s *arenaServer) InitArmy(ctx context.Context, req *InitArmyRequest) (*InitArmyResponse, error) {
	log.Printf("InitArmy called: owner=%s, signer=%s", req.Auth.Owner, req.Auth.Signer)

	v, err := s.verify(ctx, OpInitArmy, req.Auth)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	if v.Session != "" || v.Signer != v.Owner {
		return nil, wire.ToStatus(game.ErrUnauthorized.With("only the owner initializes an army"))
	}

	army, err := s.program.InitArmy(ctx, v.Owner)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &InitArmyResponse{Address: s.program.ArmyAddress(v.Owner), Army: *army}, nil
}

func (s *arenaServer) RemoveZombie(ctx context.Context, req *RemoveZombieRequest) (*RemoveZombieResponse, error) {
	log.Printf("RemoveZombie called: owner=%s, signer=%s, zombie_id=%d", req.Auth.Owner, req.Auth.Signer, req.ZombieID)

	v, err := s.verify(ctx, OpRemoveZombie, req.Auth, uint64(req.ZombieID))
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	if req.ZombieID > math.MaxUint8 {
		return nil, wire.ToStatus(game.ErrIndexOutOfRange.With("index %d", req.ZombieID))
	}

	army, err := s.program.RemoveZombie(ctx, v.Owner, v.Actor(), uint8(req.ZombieID))
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &RemoveZombieResponse{Army: *army}, nil
}

func (s *arenaServer) Battle(ctx context.Context, req *BattleRequest) (*BattleResponse, error) {
	log.Printf("Battle called: owner=%s, signer=%s, zombie_id=%d, selection=%d", req.Auth.Owner, req.Auth.Signer, req.ZombieID, req.Selection)

	v, err := s.verify(ctx, OpBattle, req.Auth, BattleArgs(req.ZombieID, req.Selection, req.DNA)...)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	if req.ZombieID > math.MaxUint8 {
		return nil, wire.ToStatus(game.ErrIndexOutOfRange.With("zombie id %d", req.ZombieID))
	}
	if req.Selection > math.MaxUint8 {
		return nil, wire.ToStatus(game.ErrInvalidSelection.With("selection %d", req.Selection))
	}

	receipt, err := s.program.Battle(ctx, game.BattleRequest{
		Owner:     v.Owner,
		Actor:     v.Actor(),
		ZombieID:  uint8(req.ZombieID),
		Selection: uint8(req.Selection),
		DNA:       req.DNA,
	})
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	army, err := s.program.GetArmy(ctx, v.Owner)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &BattleResponse{
		Address: s.program.BattleAddress(v.Owner, req.DNA),
		Battle:  *receipt,
		Army:    *army,
	}, nil
}

func (s *arenaServer) GetArmy(ctx context.Context, req *GetArmyRequest) (*GetArmyResponse, error) {
	log.Printf("GetArmy called: owner=%s", req.Owner)

	owner, err := parseOwner(req.Owner)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	army, err := s.program.GetArmy(ctx, owner)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &GetArmyResponse{Address: s.program.ArmyAddress(owner), Army: *army}, nil
}

func (s *arenaServer) GetBattle(ctx context.Context, req *GetBattleRequest) (*GetBattleResponse, error) {
	log.Printf("GetBattle called: owner=%s", req.Owner)

	owner, err := parseOwner(req.Owner)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	b, err := s.program.GetBattle(ctx, owner, req.DNA)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &GetBattleResponse{Address: s.program.BattleAddress(owner, req.DNA), Battle: *b}, nil
}

func parseOwner(raw string) (models.Pubkey, error) {
	owner, err := models.ParsePubkey(raw)
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("%w: owner: %v", wire.ErrMalformed, err)
	}
	return owner, nil
}
