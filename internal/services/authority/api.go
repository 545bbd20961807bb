package authority

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/niczy/zombies/internal/services/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "zombies.v1.AuthorityService"

// Operation names covered by request signatures.
const (
	OpIssueSession  = "issue_session"
	OpRevokeSession = "revoke_session"
)

// IssueSessionRequest is signed by the owner with Auth.Session set to the hex
// key of the session signer being authorized.
type IssueSessionRequest struct {
	Auth       wire.Auth `json:"auth"`
	TTLSeconds uint64    `json:"ttl_seconds"`
}

type IssueSessionResponse struct {
	Token         string    `json:"token"`
	SessionID     string    `json:"session_id"`
	SessionSigner string    `json:"session_signer"`
	TargetProgram string    `json:"target_program"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RevokeSessionRequest is signed by the owner with Auth.Session set to the
// session id being revoked.
type RevokeSessionRequest struct {
	Auth wire.Auth `json:"auth"`
}

type RevokeSessionResponse struct {
	SessionID string    `json:"session_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// AuthorityServer is the server API of the authority service.
type AuthorityServer interface {
	IssueSession(context.Context, *IssueSessionRequest) (*IssueSessionResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error)
}

// ServiceDesc registers an AuthorityServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthorityServer)(nil),
	Methods: []grpc.MethodDesc{
		wire.Unary(ServiceName, "IssueSession", AuthorityServer.IssueSession),
		wire.Unary(ServiceName, "RevokeSession", AuthorityServer.RevokeSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zombies/v1/authority.proto",
}

// RegisterAuthorityServer adds srv to s.
func RegisterAuthorityServer(s grpc.ServiceRegistrar, srv AuthorityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the authority service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) IssueSession(ctx context.Context, req *IssueSessionRequest) (*IssueSessionResponse, error) {
	return wire.Invoke[IssueSessionResponse](ctx, c.cc, ServiceName, "IssueSession", req)
}

func (c *Client) RevokeSession(ctx context.Context, req *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	return wire.Invoke[RevokeSessionResponse](ctx, c.cc, ServiceName, "RevokeSession", req)
}
