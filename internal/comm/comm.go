package comm

import (
	"context"

	"github.com/jzrake/gridflow/internal/errors"
)

// Communicator moves opaque byte frames between ranks.
type Communicator interface {
	// Rank returns the local rank, 0 <= Rank() < Size().
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Send delivers data to dest. The caller may reuse data once Send returns.
	Send(ctx context.Context, dest int, data []byte) error

	// Receive blocks until the next frame from src arrives.
	Receive(ctx context.Context, src int) ([]byte, error)

	// Close releases the communicator. Blocked calls return ErrClosed.
	Close() error
}

// checkPeer validates a peer rank against the group size.
func checkPeer(rank, size, peer int) error {
	if peer < 0 || peer >= size {
		return errors.NewTransportError("peer out of range", errors.ErrPeerOutOfRange).
			WithRank(rank).WithPeer(peer).WithRetryable(false)
	}
	return nil
}

// canceled converts a context error into a TransportError.
func canceled(ctx context.Context, rank, peer int, op string) error {
	return errors.NewTransportError(op+" interrupted", errors.Join(errors.ErrCanceled, ctx.Err())).
		WithRank(rank).WithPeer(peer).WithRetryable(false)
}

// closed returns the error reported by calls on a closed communicator.
func closed(rank, peer int, op string) error {
	return errors.NewTransportError(op+" on closed communicator", errors.ErrClosed).
		WithRank(rank).WithPeer(peer).WithRetryable(false)
}
