package comm

import (
	"context"
	"sync"

	"github.com/jzrake/gridflow/internal/errors"
)

// Null is the single-process communicator: rank 0 of a group of one. A frame
// sent to rank 0 is handed back by the next Receive from rank 0.
type Null struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

var _ Communicator = (*Null)(nil)

// NewNull returns a Null communicator.
func NewNull() *Null {
	return &Null{}
}

// Rank always returns 0.
func (n *Null) Rank() int { return 0 }

// Size always returns 1.
func (n *Null) Size() int { return 1 }

// Send queues a copy of data for the next Receive.
func (n *Null) Send(ctx context.Context, dest int, data []byte) error {
	if err := checkPeer(0, 1, dest); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return canceled(ctx, 0, dest, "send")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return closed(0, dest, "send")
	}
	n.queue = append(n.queue, append([]byte(nil), data...))
	return nil
}

// Receive returns the oldest queued frame. With nothing queued it fails
// rather than blocking, since no other rank exists to send one.
func (n *Null) Receive(ctx context.Context, src int) ([]byte, error) {
	if err := checkPeer(0, 1, src); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx, 0, src, "receive")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, closed(0, src, "receive")
	}
	if len(n.queue) == 0 {
		return nil, errors.NewTransportError("receive with no frame queued", errors.ErrTransport).
			WithRank(0).WithPeer(src).WithRetryable(false)
	}
	data := n.queue[0]
	n.queue = n.queue[1:]
	return data, nil
}

// Close drops queued frames.
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.queue = nil
	return nil
}
