package grpccomm

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jzrake/gridflow/internal/comm"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/logging"
)

// DefaultQueueDepth is the number of frames buffered per source rank.
const DefaultQueueDepth = 4

// Config describes one rank of a gRPC group.
type Config struct {
	// Rank is this process's rank.
	Rank int
	// Peers holds every rank's listen address, indexed by rank.
	Peers []string
	// DialTimeout bounds the wait for a peer to become healthy.
	DialTimeout time.Duration
	// QueueDepth is the per-source inbound buffer.
	QueueDepth int
}

// Validate checks the rank against the peer list.
func (c Config) Validate() error {
	if len(c.Peers) == 0 {
		return errors.NewConfigError("cluster.peers", c.Peers, errors.New("at least one peer address is required"))
	}
	if c.Rank < 0 || c.Rank >= len(c.Peers) {
		return errors.NewConfigError("cluster.rank", c.Rank,
			fmt.Errorf("%w: rank must be in [0,%d)", errors.ErrPeerOutOfRange, len(c.Peers)))
	}
	return nil
}

// Option customizes a Comm.
type Option func(*options)

type options struct {
	listener net.Listener
	dialOpts []grpc.DialOption
	logger   *logging.Logger
}

// WithListener serves on lis instead of listening on the rank's address.
func WithListener(lis net.Listener) Option {
	return func(o *options) { o.listener = lis }
}

// WithDialOptions adds client dial options after the defaults.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Comm is a gRPC-backed communicator. It is safe for concurrent use.
type Comm struct {
	cfg      Config
	logger   *logging.Logger
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
	dialOpts []grpc.DialOption

	inbox []chan []byte
	peers []*peerConn

	done      chan struct{}
	closeOnce sync.Once
	serveErr  chan error
}

type peerConn struct {
	mu   sync.Mutex
	conn *grpc.ClientConn
}

var _ comm.Communicator = (*Comm)(nil)

// New starts serving this rank's exchange endpoint. Peers are dialed on
// first use.
func New(cfg Config, opts ...Option) (*Comm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	o := options{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	lis := o.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", cfg.Peers[cfg.Rank])
		if err != nil {
			return nil, errors.NewTransportError("listen", errors.Join(errors.ErrTransport, err)).
				WithRank(cfg.Rank).WithRetryable(false)
		}
	}

	c := &Comm{
		cfg:      cfg,
		logger:   o.logger.WithRank(cfg.Rank).WithPhase("transport"),
		listener: lis,
		server:   grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:   health.NewServer(),
		dialOpts: append(defaultDialOptions(), o.dialOpts...),
		inbox:    make([]chan []byte, len(cfg.Peers)),
		peers:    make([]*peerConn, len(cfg.Peers)),
		done:     make(chan struct{}),
		serveErr: make(chan error, 1),
	}
	for i := range cfg.Peers {
		c.inbox[i] = make(chan []byte, cfg.QueueDepth)
		c.peers[i] = &peerConn{}
	}

	c.server.RegisterService(&exchangeServiceDesc, exchangeHandler{c})
	healthpb.RegisterHealthServer(c.server, c.health)
	c.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	c.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		c.serveErr <- c.server.Serve(lis)
	}()
	c.logger.Info("exchange service listening", "addr", lis.Addr().String(), "size", len(cfg.Peers))
	return c, nil
}

// Rank returns the local rank.
func (c *Comm) Rank() int { return c.cfg.Rank }

// Size returns the number of ranks.
func (c *Comm) Size() int { return len(c.cfg.Peers) }

// Addr returns the address the exchange service is bound to.
func (c *Comm) Addr() string { return c.listener.Addr().String() }

func (c *Comm) checkPeer(peer int) error {
	if peer < 0 || peer >= len(c.cfg.Peers) {
		return errors.NewTransportError("peer out of range", errors.ErrPeerOutOfRange).
			WithRank(c.cfg.Rank).WithPeer(peer).WithRetryable(false)
	}
	return nil
}

// Send delivers data to dest, dialing it first if needed.
func (c *Comm) Send(ctx context.Context, dest int, data []byte) error {
	if err := c.checkPeer(dest); err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.NewTransportError("send on closed communicator", errors.ErrClosed).
			WithRank(c.cfg.Rank).WithPeer(dest).WithRetryable(false)
	default:
	}

	conn, err := c.conn(ctx, dest)
	if err != nil {
		return errors.NewTransportError("dial", errors.Join(errors.ErrTransport, err)).
			WithRank(c.cfg.Rank).WithPeer(dest)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, sourceHeader, strconv.Itoa(c.cfg.Rank))
	if err := deliver(ctx, conn, data); err != nil {
		retryable := status.Code(err) == codes.Unavailable
		return errors.NewTransportError("deliver frame", errors.Join(errors.ErrTransport, err)).
			WithRank(c.cfg.Rank).WithPeer(dest).WithRetryable(retryable)
	}
	return nil
}

func (c *Comm) conn(ctx context.Context, peer int) (*grpc.ClientConn, error) {
	pc := c.peers[peer]
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.conn != nil {
		return pc.conn, nil
	}
	start := time.Now()
	conn, err := dialPeer(ctx, peer, c.cfg.Peers[peer], c.cfg.DialTimeout, c.dialOpts)
	if err != nil {
		c.logger.Warn("peer dial failed", "peer", peer, "addr", c.cfg.Peers[peer], "error", err.Error())
		return nil, err
	}
	c.logger.Debug("peer connected", "peer", peer, "addr", c.cfg.Peers[peer],
		"elapsed_ms", time.Since(start).Milliseconds())
	pc.conn = conn
	return conn, nil
}

// Receive blocks until the next frame from src arrives.
func (c *Comm) Receive(ctx context.Context, src int) ([]byte, error) {
	if err := c.checkPeer(src); err != nil {
		return nil, err
	}
	select {
	case data := <-c.inbox[src]:
		return data, nil
	case <-c.done:
		return nil, errors.NewTransportError("receive on closed communicator", errors.ErrClosed).
			WithRank(c.cfg.Rank).WithPeer(src).WithRetryable(false)
	case <-ctx.Done():
		return nil, errors.NewTransportError("receive interrupted", errors.Join(errors.ErrCanceled, ctx.Err())).
			WithRank(c.cfg.Rank).WithPeer(src).WithRetryable(false)
	}
}

// Close stops serving and closes peer connections.
func (c *Comm) Close() error {
	c.closeOnce.Do(func() {
		c.health.Shutdown()
		close(c.done)
		c.server.GracefulStop()
		for _, pc := range c.peers {
			pc.mu.Lock()
			if pc.conn != nil {
				_ = pc.conn.Close()
				pc.conn = nil
			}
			pc.mu.Unlock()
		}
		if err := <-c.serveErr; err != nil {
			c.logger.Warn("exchange service stopped", "error", err.Error())
		}
	})
	return nil
}

type exchangeHandler struct {
	c *Comm
}

// Deliver parks an inbound frame on its source's queue.
func (h exchangeHandler) Deliver(ctx context.Context, frame *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	src, err := sourceRank(ctx, len(h.c.cfg.Peers))
	if err != nil {
		return nil, err
	}
	select {
	case h.c.inbox[src] <- frame.GetValue():
		return &emptypb.Empty{}, nil
	case <-h.c.done:
		return nil, status.Error(codes.Aborted, "communicator closed")
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func sourceRank(ctx context.Context, size int) (int, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(sourceHeader)
	if len(values) != 1 {
		return 0, status.Errorf(codes.InvalidArgument, "missing %s header", sourceHeader)
	}
	src, err := strconv.Atoi(values[0])
	if err != nil || src < 0 || src >= size {
		return 0, status.Errorf(codes.InvalidArgument, "invalid source rank %q", values[0])
	}
	return src, nil
}
