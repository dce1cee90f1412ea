package grpccomm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	// DialStageConnect indicates the client could not be created.
	DialStageConnect DialStage = "connect"
	// DialStageHealth indicates the peer never reported SERVING.
	DialStageHealth DialStage = "health"
)

// DialError wraps dial and health check failures with a stage indicator.
type DialError struct {
	Peer  int
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	return fmt.Sprintf("dial rank %d: %s: %v", e.Peer, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}

func defaultDialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultServiceConfig(retryServiceConfig),
	}
}

// dialPeer creates a client for addr and waits until the peer's exchange
// service reports SERVING or timeout elapses.
func dialPeer(ctx context.Context, peer int, addr string, timeout time.Duration, opts []grpc.DialOption) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, &DialError{Peer: peer, Stage: DialStageConnect, Err: err}
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := waitForHealth(waitCtx, conn); err != nil {
		_ = conn.Close()
		return nil, &DialError{Peer: peer, Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}

// waitForHealth polls the health service with capped exponential backoff.
func waitForHealth(ctx context.Context, conn *grpc.ClientConn) error {
	client := healthpb.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: serviceName})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("wait for health: %w (last error: %v)", ctx.Err(), err)
			}
			return fmt.Errorf("wait for health: %w (status %s)", ctx.Err(), resp.GetStatus())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
