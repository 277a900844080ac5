package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

type flakyBackend struct {
	store.Backend
	err error
}

func (f *flakyBackend) Ping(context.Context) error { return f.err }

func dial(t *testing.T, server *grpc.Server) healthpb.HealthClient {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthFollowsBackendProbe(t *testing.T) {
	ctx := context.Background()
	base, err := local.Open()
	require.NoError(t, err)
	backend := &flakyBackend{Backend: base}

	hs := NewHealth()
	client := dial(t, NewServer(zap.NewNop(), hs))

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	assert.True(t, Probe(ctx, backend, hs, zap.NewNop()))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	backend.err = errors.New("connection refused")
	assert.False(t, Probe(ctx, backend, hs, zap.NewNop()))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestStatusErrorMapsKinds(t *testing.T) {
	assert.NoError(t, StatusError(nil))
	assert.Equal(t, codes.Unavailable, status.Code(StatusError(errorbank.Backend("redis down"))))
	assert.Equal(t, codes.Aborted, status.Code(StatusError(errorbank.Conflict("table busy"))))
	assert.Equal(t, codes.InvalidArgument, status.Code(StatusError(errorbank.Validation("bad table"))))

	original := status.Error(codes.PermissionDenied, "nope")
	assert.Equal(t, original, StatusError(original))
}
