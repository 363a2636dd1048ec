package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func useBufconn(t *testing.T) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	orig := netListen
	netListen = func(string, string) (net.Listener, error) { return lis, nil }
	t.Cleanup(func() { netListen = orig })
	return lis
}

func TestRun_ServesHealthUntilCancel(t *testing.T) {
	lis := useBufconn(t)
	srv := NewGRPCServer("bufnet", logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}

	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestRun_ReturnsListenError(t *testing.T) {
	orig := netListen
	netListen = func(string, string) (net.Listener, error) { return nil, errors.New("address in use") }
	t.Cleanup(func() { netListen = orig })

	err := NewGRPCServer("127.0.0.1:1", logging.Nop()).Run(context.Background())
	assert.EqualError(t, err, "address in use")
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := NewGRPCServer("127.0.0.1:99999", logging.Nop()).Run(ctx)
	assert.Error(t, err)
}

// chanWatcher forwards reports pushed on c until ctx is done.
type chanWatcher struct {
	c chan healthcheck.Report
}

func (w chanWatcher) Watch(ctx context.Context, _ time.Duration, fn func(healthcheck.Report)) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-w.c:
			fn(r)
		}
	}
}

func TestRun_StatusFollowsHealthWatcher(t *testing.T) {
	useBufconn(t)
	w := chanWatcher{c: make(chan healthcheck.Report)}
	srv := NewGRPCServer("bufnet", logging.Nop()).WithHealthWatcher(w, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	w.c <- healthcheck.Report{Status: healthcheck.StatusOK}
	require.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_SERVING },
		2*time.Second, 10*time.Millisecond)

	w.c <- healthcheck.Report{Status: healthcheck.StatusError}
	require.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_NOT_SERVING },
		2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}
