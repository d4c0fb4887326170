package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fullmeo/aimastery-billing/internal/config"
)

func TestHealthCheck(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{GRPC: config.GRPCConfig{Host: "127.0.0.1", Port: 0}}}
	srv := NewServer(cfg, zap.NewNop())
	require.NoError(t, srv.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	conn, err := grpc.NewClient(srv.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
