package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/nadzzz/qia/internal/message"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "qia.v1.Orchestrator"

const handleCommandMethod = "/" + ServiceName + "/HandleCommand"

// jsonCodec lets the service exchange plain JSON messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// OrchestratorServer is the server API of the Orchestrator service.
type OrchestratorServer interface {
	HandleCommand(ctx context.Context, req *message.CommandRequest) (*message.Envelope, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HandleCommand", Handler: handleCommandHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qia/v1/orchestrator.proto",
}

func handleCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.CommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrchestratorServer).HandleCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: handleCommandMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrchestratorServer).HandleCommand(ctx, req.(*message.CommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the Orchestrator service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// HandleCommand runs one command remotely. The caller authenticates by
// putting "authorization: Bearer <token>" in the outgoing metadata.
func (c *Client) HandleCommand(ctx context.Context, req *message.CommandRequest, opts ...grpc.CallOption) (*message.Envelope, error) {
	out := new(message.Envelope)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype("json")}, opts...)
	if err := c.cc.Invoke(ctx, handleCommandMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
