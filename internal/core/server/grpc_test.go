package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/api"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/auth"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/config"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/db"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
)

const secretID = "0123456789abcdef0123456789abcdef"

func startServer(t *testing.T, authenticator *auth.Authenticator) (*GRPCServer, *grpc.ClientConn) {
	t.Helper()
	svc, err := api.NewSensorService(registry.New(registry.Options{}), 8, nil)
	require.NoError(t, err)

	srv, err := NewGRPCServer(config.DefaultConfig().API, svc, authenticator)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Close()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func TestNewGRPCServer_NilService(t *testing.T) {
	_, err := NewGRPCServer(config.DefaultConfig().API, nil, nil)
	assert.Error(t, err)
}

func TestGRPCServer_HealthAndNoAuth(t *testing.T) {
	srv, conn := startServer(t, nil)
	assert.NotNil(t, srv.Addr())

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	out, err := api.NewSensorServiceClient(conn).ListSensors(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Contains(t, out.AsMap(), "sensors")
}

func TestGRPCServer_APIKeyAuth(t *testing.T) {
	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.MigrateUp(conn))
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)

	secrets := map[string][]byte{secretID: []byte("testsecret1234567890abcdefghijklmnop")}
	_, key, err := auth.CreateKey(context.Background(), q, secrets, "chartplotter")
	require.NoError(t, err)

	_, cc := startServer(t, auth.NewAuthenticator(secrets, q))
	client := api.NewSensorServiceClient(cc)

	_, err = client.ListSensors(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), auth.MetadataKey, key)
	_, err = client.ListSensors(ctx, &structpb.Struct{})
	require.NoError(t, err)

	stream, err := client.WatchEvents(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err = client.WatchEvents(watchCtx, &structpb.Struct{})
	require.NoError(t, err)
	_, err = stream.Header()
	require.NoError(t, err)
}

func TestTimeoutInterceptor(t *testing.T) {
	interceptor := deadline(50 * time.Millisecond)
	var gotDeadline time.Time
	var ok bool
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		gotDeadline, ok = ctx.Deadline()
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), gotDeadline, time.Second)

	_, err = deadline(0)(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		_, ok = ctx.Deadline()
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
}
