package comm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-pair channel capacity used by NewHub when the
// caller passes a non-positive buffer.
const DefaultBuffer = 4

// Hub connects a fixed group of in-process ranks. Each ordered pair of ranks
// has its own buffered channel, so frames between a pair arrive in order and
// a slow pair never blocks another.
type Hub struct {
	size  int
	links [][]chan []byte // links[src][dest]
	done  chan struct{}
	once  sync.Once

	sent     atomic.Int64
	received atomic.Int64
}

// NewHub returns a hub for size ranks.
func NewHub(size, buffer int) (*Hub, error) {
	if size <= 0 {
		return nil, fmt.Errorf("comm: hub size must be positive, got %d", size)
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	links := make([][]chan []byte, size)
	for src := range size {
		links[src] = make([]chan []byte, size)
		for dest := range size {
			links[src][dest] = make(chan []byte, buffer)
		}
	}
	return &Hub{size: size, links: links, done: make(chan struct{})}, nil
}

// Size returns the number of ranks.
func (h *Hub) Size() int {
	return h.size
}

// Comm returns the communicator for rank. It panics if rank is out of range.
func (h *Hub) Comm(rank int) *Local {
	if rank < 0 || rank >= h.size {
		panic(fmt.Sprintf("comm: rank %d out of range [0,%d)", rank, h.size))
	}
	return &Local{hub: h, rank: rank}
}

// Comms returns one communicator per rank, indexed by rank.
func (h *Hub) Comms() []*Local {
	comms := make([]*Local, h.size)
	for rank := range h.size {
		comms[rank] = h.Comm(rank)
	}
	return comms
}

// Frames returns the number of frames sent and received through the hub.
func (h *Hub) Frames() (sent, received int64) {
	return h.sent.Load(), h.received.Load()
}

// Close unblocks every pending Send and Receive on every rank.
func (h *Hub) Close() error {
	h.once.Do(func() { close(h.done) })
	return nil
}

// Local is one rank's view of a Hub.
type Local struct {
	hub  *Hub
	rank int
}

var _ Communicator = (*Local)(nil)

// Rank returns the local rank.
func (l *Local) Rank() int { return l.rank }

// Size returns the hub size.
func (l *Local) Size() int { return l.hub.size }

// Send copies data onto the channel toward dest, blocking while it is full.
func (l *Local) Send(ctx context.Context, dest int, data []byte) error {
	if err := checkPeer(l.rank, l.hub.size, dest); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return canceled(ctx, l.rank, dest, "send")
	}
	frame := append([]byte(nil), data...)
	select {
	case <-l.hub.done:
		return closed(l.rank, dest, "send")
	default:
	}
	select {
	case l.hub.links[l.rank][dest] <- frame:
		l.hub.sent.Add(1)
		return nil
	case <-l.hub.done:
		return closed(l.rank, dest, "send")
	case <-ctx.Done():
		return canceled(ctx, l.rank, dest, "send")
	}
}

// Receive takes the next frame sent by src to this rank.
func (l *Local) Receive(ctx context.Context, src int) ([]byte, error) {
	if err := checkPeer(l.rank, l.hub.size, src); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx, l.rank, src, "receive")
	}
	select {
	case data := <-l.hub.links[src][l.rank]:
		l.hub.received.Add(1)
		return data, nil
	case <-l.hub.done:
		return nil, closed(l.rank, src, "receive")
	case <-ctx.Done():
		return nil, canceled(ctx, l.rank, src, "receive")
	}
}

// Close closes the whole hub; ranks of one hub share a lifetime.
func (l *Local) Close() error {
	return l.hub.Close()
}
