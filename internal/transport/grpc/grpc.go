// Package grpc implements the gRPC transport for qia.
//
// This transport exposes the qia.v1.Orchestrator service with a single unary
// method, HandleCommand. Messages are JSON-encoded (content subtype "json")
// so clients need no generated stubs. It is the preferred transport for
// low-latency service-to-service calls.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
	"github.com/nadzzz/qia/internal/transport"
)

// Options configures the transport.
type Options struct {
	Port int
	Auth auth.Authenticator
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	opts   Options
	server *grpc.Server
	health *grpchealth.Server
}

// New creates a new gRPC transport.
func New(opts Options) *Transport {
	if opts.Auth == nil {
		opts.Auth = auth.Open{}
	}
	return &Transport{opts: opts}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// NewServer builds a gRPC server serving backend and the standard health
// service.
func (t *Transport) NewServer(backend transport.Backend) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(t.authInterceptor))
	s.RegisterService(&serviceDesc, &service{backend: backend})

	t.health = grpchealth.NewServer()
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, t.health)
	return s
}

// Listen starts the gRPC server and routes incoming requests to backend.
func (t *Transport) Listen(ctx context.Context, backend transport.Backend) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.opts.Port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	t.server = t.NewServer(backend)

	slog.Info("grpc transport listening", "port", t.opts.Port)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		_ = t.Close()
	}()

	return t.server.Serve(lis)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.health != nil {
		t.health.Shutdown()
	}
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// authInterceptor resolves the bearer token in the "authorization" metadata
// and stores the user in the context. Health checks are unauthenticated.
func (t *Transport) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
		return handler(ctx, req)
	}
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			token = vals[0]
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
		}
	}
	user, err := t.opts.Auth.Authenticate(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid authentication credentials")
	}
	return handler(auth.WithUser(ctx, user), req)
}

// service adapts the backend to the Orchestrator service.
type service struct {
	backend transport.Backend
}

// HandleCommand runs one command for the authenticated user. Command
// failures are reported in the envelope, not as gRPC errors.
func (s *service) HandleCommand(ctx context.Context, req *message.CommandRequest) (*message.Envelope, error) {
	user, ok := auth.UserFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no authenticated user")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, status.Error(codes.InvalidArgument, message.MissingTextMessage)
	}
	r := s.backend.Handle(ctx, task.Command{User: user, Text: req.Text, Aux: req.Aux})
	env := message.NewEnvelope(r)
	return &env, nil
}
