package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jzrake/gridflow/internal/automaton"
	"github.com/jzrake/gridflow/internal/coder"
	"github.com/jzrake/gridflow/internal/errors"
)

type stats struct {
	peers         int
	local         int
	framesSent    int
	bytesSent     int
	bytesReceived int
}

// exchange routes outgoing[i] (the messages of tasks[i]) to their owners and
// returns the resulting inbox. Frames carry tag, the round that will consume
// them.
func (s *Scheduler[K, M, V]) exchange(ctx context.Context, tag uint64, tasks []automaton.Automaton[K, M, V], r routing[K], outgoing []map[K]M) (automaton.Inbox[K, M], stats, error) {
	me := s.comm.Rank()
	st := stats{peers: len(r.peers)}
	inbox := automaton.Inbox[K, M]{}

	batches := make(map[int][][]byte, len(r.peers))
	for i, task := range tasks {
		from := task.Key()
		for _, to := range task.Neighbors() {
			msg, ok := outgoing[i][to]
			if !ok {
				continue
			}
			env := automaton.Envelope[K, M]{From: from, To: to, Message: msg}
			owner, _ := s.assignment.Rank(to)
			if owner == me {
				if !r.local[to] {
					return nil, st, errors.NewContractError("destination is owned by this rank but not among its tasks", errors.ErrUnassignedKey).
						WithKey(from).WithPeerKey(to)
				}
				if err := inbox.Deliver(env); err != nil {
					return nil, st, err
				}
				st.local++
				continue
			}
			data, err := s.coder.Encode(env)
			if err != nil {
				return nil, st, err
			}
			batches[owner] = append(batches[owner], data)
		}
	}

	received, err := s.transfer(ctx, tag, r.peers, batches, &st)
	if err != nil {
		return nil, st, err
	}

	for i, peer := range r.peers {
		if err := s.accept(peer, tag, received[i], r, inbox, &st); err != nil {
			return nil, st, err
		}
	}
	return inbox, st, nil
}

// transfer sends one frame to every peer and receives one from each,
// concurrently. The first failure cancels the rest.
func (s *Scheduler[K, M, V]) transfer(ctx context.Context, tag uint64, peers []int, batches map[int][][]byte, st *stats) ([][]byte, error) {
	me := s.comm.Rank()
	received := make([][]byte, len(peers))
	if len(peers) == 0 {
		return received, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, peer := range peers {
		frame, err := s.frames.Encode(coder.Frame{Source: me, Round: tag, Messages: batches[peer]})
		if err != nil {
			return nil, err
		}
		st.framesSent++
		st.bytesSent += len(frame)

		g.Go(func() error {
			return s.comm.Send(gctx, peer, frame)
		})
		g.Go(func() error {
			data, err := s.comm.Receive(gctx, peer)
			received[i] = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return received, nil
}

// accept decodes the frame received from peer into inbox.
func (s *Scheduler[K, M, V]) accept(peer int, tag uint64, data []byte, r routing[K], inbox automaton.Inbox[K, M], st *stats) error {
	me := s.comm.Rank()
	st.bytesReceived += len(data)

	frame, err := s.frames.Decode(data)
	if err != nil {
		var codec *errors.CodecError
		if errors.As(err, &codec) {
			codec.WithPeer(peer)
		}
		return err
	}
	if frame.Source != peer {
		return errors.NewContractError(fmt.Sprintf("frame received from rank %d claims source %d", peer, frame.Source), errors.ErrUnexpectedPeer)
	}
	if frame.Round != tag {
		return errors.NewContractError(fmt.Sprintf("frame from rank %d is for round %d, expected %d", peer, frame.Round, tag), errors.ErrRoundMismatch)
	}

	for _, msg := range frame.Messages {
		env, err := s.coder.Decode(msg)
		if err != nil {
			var codec *errors.CodecError
			if errors.As(err, &codec) {
				codec.WithPeer(peer)
			}
			return err
		}
		if owner, ok := s.assignment.Rank(env.To); !ok || owner != me || !r.local[env.To] {
			return errors.NewContractError(fmt.Sprintf("rank %d sent a message for a key this rank does not hold", peer), errors.ErrForeignKey).
				WithKey(env.To).WithPeerKey(env.From)
		}
		if owner, ok := s.assignment.Rank(env.From); !ok || owner != peer {
			return errors.NewContractError(fmt.Sprintf("rank %d sent a message from a key it does not own", peer), errors.ErrForeignKey).
				WithKey(env.To).WithPeerKey(env.From)
		}
		if err := inbox.Deliver(env); err != nil {
			return err
		}
	}
	return nil
}
