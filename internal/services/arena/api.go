package arena

import (
	"context"

	"google.golang.org/grpc"

	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "zombies.v1.ArenaService"

// Operation names covered by request signatures.
const (
	OpInitArmy     = "init_army"
	OpRemoveZombie = "remove_zombie"
	OpBattle       = "battle"
)

type InitArmyRequest struct {
	Auth wire.Auth `json:"auth"`
}

type InitArmyResponse struct {
	Address models.Address `json:"address"`
	Army    models.Army    `json:"army"`
}

type RemoveZombieRequest struct {
	Auth     wire.Auth `json:"auth"`
	ZombieID uint32    `json:"zombie_id"`
}

type RemoveZombieResponse struct {
	Army models.Army `json:"army"`
}

type BattleRequest struct {
	Auth      wire.Auth            `json:"auth"`
	ZombieID  uint32               `json:"zombie_id"`
	Selection uint32               `json:"selection"`
	DNA       [models.Cards]uint64 `json:"dna"`
}

// BattleArgs lists the signed numeric arguments of a battle request.
func BattleArgs(zombieID, selection uint32, dna [models.Cards]uint64) []uint64 {
	return []uint64{uint64(zombieID), uint64(selection), dna[0], dna[1], dna[2]}
}

type BattleResponse struct {
	Address models.Address `json:"address"`
	Battle  models.Battle  `json:"battle"`
	Army    models.Army    `json:"army"`
}

type GetArmyRequest struct {
	Owner string `json:"owner"`
}

type GetArmyResponse struct {
	Address models.Address `json:"address"`
	Army    models.Army    `json:"army"`
}

type GetBattleRequest struct {
	Owner string               `json:"owner"`
	DNA   [models.Cards]uint64 `json:"dna"`
}

type GetBattleResponse struct {
	Address models.Address `json:"address"`
	Battle  models.Battle  `json:"battle"`
}

// ArenaServer is the server API of the arena service.
type ArenaServer interface {
	InitArmy(context.Context, *InitArmyRequest) (*InitArmyResponse, error)
	RemoveZombie(context.Context, *RemoveZombieRequest) (*RemoveZombieResponse, error)
	Battle(context.Context, *BattleRequest) (*BattleResponse, error)
	GetArmy(context.Context, *GetArmyRequest) (*GetArmyResponse, error)
	GetBattle(context.Context, *GetBattleRequest) (*GetBattleResponse, error)
}

// ServiceDesc registers an ArenaServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ArenaServer)(nil),
	Methods: []grpc.MethodDesc{
		wire.Unary(ServiceName, "InitArmy", ArenaServer.InitArmy),
		wire.Unary(ServiceName, "RemoveZombie", ArenaServer.RemoveZombie),
		wire.Unary(ServiceName, "Battle", ArenaServer.Battle),
		wire.Unary(ServiceName, "GetArmy", ArenaServer.GetArmy),
		wire.Unary(ServiceName, "GetBattle", ArenaServer.GetBattle),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zombies/v1/arena.proto",
}

// RegisterArenaServer adds srv to s.
func RegisterArenaServer(s grpc.ServiceRegistrar, srv ArenaServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the arena service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) InitArmy(ctx context.Context, req *InitArmyRequest) (*InitArmyResponse, error) {
	return wire.Invoke[InitArmyResponse](ctx, c.cc, ServiceName, "InitArmy", req)
}

func (c *Client) RemoveZombie(ctx context.Context, req *RemoveZombieRequest) (*RemoveZombieResponse, error) {
	return wire.Invoke[RemoveZombieResponse](ctx, c.cc, ServiceName, "RemoveZombie", req)
}

func (c *Client) Battle(ctx context.Context, req *BattleRequest) (*BattleResponse, error) {
	return wire.Invoke[BattleResponse](ctx, c.cc, ServiceName, "Battle", req)
}

func (c *Client) GetArmy(ctx context.Context, req *GetArmyRequest) (*GetArmyResponse, error) {
	return wire.Invoke[GetArmyResponse](ctx, c.cc, ServiceName, "GetArmy", req)
}

func (c *Client) GetBattle(ctx context.Context, req *GetBattleRequest) (*GetBattleResponse, error) {
	return wire.Invoke[GetBattleResponse](ctx, c.cc, ServiceName, "GetBattle", req)
}
