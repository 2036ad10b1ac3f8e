package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reply struct {
	Message string `json:"message"`
}

func (r reply) Summary() string { return r.Message }

type stubBackend struct {
	last chan task.Command
}

func (b *stubBackend) Handle(_ context.Context, cmd task.Command) task.Result {
	b.last <- cmd
	if cmd.Text == "fail" {
		return task.Failed(task.IntentWebSearch, &task.TransportError{Op: "web search", Err: context.DeadlineExceeded}, "", time.Now())
	}
	return task.Succeeded(task.IntentGeneral, reply{Message: "ok " + cmd.Text}, time.Now())
}

func (b *stubBackend) ProcessVoice(context.Context, task.UserID, []byte, string) (*message.VoiceResponse, error) {
	return nil, nil
}

func (b *stubBackend) SetShortcut(context.Context, task.UserID, string, string) error { return nil }

func setup(t *testing.T) (*grpc.ClientConn, *stubBackend) {
	t.Helper()
	b := &stubBackend{last: make(chan task.Command, 8)}
	tr := New(Options{Auth: auth.New(map[string]string{"tok-alice": "alice"})})

	lis := bufconn.Listen(1 << 20)
	srv := tr.NewServer(b)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return conn, b
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestHandleCommand(t *testing.T) {
	conn, b := setup(t)
	client := NewClient(conn)

	env, err := client.HandleCommand(withToken("tok-alice"), &message.CommandRequest{
		Text: "hello",
		Aux:  map[string]string{"device_id": "lamp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "general", env.TaskType)
	assert.Nil(t, env.Error)
	assert.Equal(t, map[string]any{"message": "ok hello"}, env.Result)

	cmd := <-b.last
	assert.Equal(t, task.UserID("alice"), cmd.User)
	assert.Equal(t, "lamp", cmd.Aux["device_id"])
}

func TestHandleCommandErrorEnvelope(t *testing.T) {
	conn, b := setup(t)

	env, err := NewClient(conn).HandleCommand(withToken("tok-alice"), &message.CommandRequest{Text: "fail"})
	require.NoError(t, err, "command failures travel in the envelope")
	<-b.last
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Contains(t, *env.Error, "web search")
	assert.Nil(t, env.Result)
}

func TestHandleCommandRejections(t *testing.T) {
	conn, _ := setup(t)
	client := NewClient(conn)

	_, err := client.HandleCommand(context.Background(), &message.CommandRequest{Text: "hello"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.HandleCommand(withToken("tok-eve"), &message.CommandRequest{Text: "hello"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.HandleCommand(withToken("tok-alice"), &message.CommandRequest{Text: " "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthService(t *testing.T) {
	conn, _ := setup(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
