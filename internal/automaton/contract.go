package automaton

import (
	"fmt"

	"github.com/jzrake/gridflow/internal/errors"
)

// CheckOutgoing verifies that outgoing is addressed to exactly the declared
// neighbors of the task with the given key.
func CheckOutgoing[K comparable, M any](key K, neighbors []K, outgoing map[K]M) error {
	declared := make(map[K]bool, len(neighbors))
	for _, n := range neighbors {
		declared[n] = true
	}
	for to := range outgoing {
		if !declared[to] {
			return errors.NewContractError("outgoing message to undeclared key", errors.ErrUndeclaredNeighbor).
				WithKey(key).WithPeerKey(to)
		}
	}
	for _, n := range neighbors {
		if _, ok := outgoing[n]; !ok {
			return errors.NewContractError("no outgoing message for declared neighbor", errors.ErrMissingMessage).
				WithKey(key).WithPeerKey(n)
		}
	}
	return nil
}

// CheckIncoming verifies that incoming holds exactly one message from each
// declared neighbor and nothing else.
func CheckIncoming[K comparable, M any](key K, neighbors []K, incoming map[K]M) error {
	declared := make(map[K]bool, len(neighbors))
	for _, n := range neighbors {
		declared[n] = true
		if _, ok := incoming[n]; !ok {
			return errors.NewContractError("no incoming message from declared neighbor", errors.ErrMissingMessage).
				WithKey(key).WithPeerKey(n)
		}
	}
	for from := range incoming {
		if !declared[from] {
			return errors.NewContractError("incoming message from undeclared key", errors.ErrUndeclaredNeighbor).
				WithKey(key).WithPeerKey(from)
		}
	}
	return nil
}

// Inbox collects messages per destination key, keyed by source within each
// destination. It is not safe for concurrent use.
type Inbox[K comparable, M any] map[K]map[K]M

// Deliver adds env to the destination's incoming set. A second message for
// the same (source, destination) pair is a contract violation.
func (in Inbox[K, M]) Deliver(env Envelope[K, M]) error {
	set, ok := in[env.To]
	if !ok {
		set = make(map[K]M)
		in[env.To] = set
	}
	if _, dup := set[env.From]; dup {
		return errors.NewContractError(fmt.Sprintf("second message from %v", env.From), errors.ErrDuplicateMessage).
			WithKey(env.To).WithPeerKey(env.From)
	}
	set[env.From] = env.Message
	return nil
}

// Take removes and returns the incoming set for key. A key with no messages
// yields an empty, non-nil map.
func (in Inbox[K, M]) Take(key K) map[K]M {
	set, ok := in[key]
	if !ok {
		return map[K]M{}
	}
	delete(in, key)
	return set
}
