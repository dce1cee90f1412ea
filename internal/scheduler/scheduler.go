package scheduler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jzrake/gridflow/internal/automaton"
	"github.com/jzrake/gridflow/internal/coder"
	"github.com/jzrake/gridflow/internal/comm"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/event"
	"github.com/jzrake/gridflow/internal/logging"
	"github.com/jzrake/gridflow/internal/telemetry"
)

// TracerName names the tracer used for round spans.
const TracerName = "github.com/jzrake/gridflow/internal/scheduler"

// Assignment maps each key to its owning rank. It must be the same on every
// rank and must not change during a run.
type Assignment[K comparable] interface {
	Rank(key K) (int, bool)
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	strategy Strategy
	logger   *logging.Logger
	bus      *event.Bus
	tracer   trace.Tracer
}

// WithStrategy sets how local steps are run. The default is Serial.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBus publishes a RoundCompletedEvent after every round.
func WithBus(b *event.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Scheduler executes rounds for one rank's tasks. It is not safe for
// concurrent use; each rank owns one.
type Scheduler[K comparable, M any, V any] struct {
	comm       comm.Communicator
	coder      automaton.Coder[K, M]
	frames     *coder.FrameCodec
	assignment Assignment[K]

	strategy Strategy
	logger   *logging.Logger
	bus      *event.Bus
	tracer   trace.Tracer

	round   uint64
	primed  bool
	inbox   automaton.Inbox[K, M]
	aborted error
}

// New returns a Scheduler for the communicator's rank.
func New[K comparable, M any, V any](c comm.Communicator, cd automaton.Coder[K, M], a Assignment[K], opts ...Option) (*Scheduler[K, M, V], error) {
	o := options{strategy: Serial{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer(TracerName)
	}

	frames, err := coder.NewFrameCodec()
	if err != nil {
		return nil, err
	}
	return &Scheduler[K, M, V]{
		comm:       c,
		coder:      cd,
		frames:     frames,
		assignment: a,
		strategy:   o.strategy,
		logger:     o.logger.WithRank(c.Rank()),
		bus:        o.bus,
		tracer:     o.tracer,
		inbox:      automaton.Inbox[K, M]{},
	}, nil
}

// Round returns the number of completed rounds.
func (s *Scheduler[K, M, V]) Round() uint64 {
	return s.round
}

// Rank returns the local rank.
func (s *Scheduler[K, M, V]) Rank() int {
	return s.comm.Rank()
}

// Err returns the failure that aborted the scheduler, or nil. Once set, every
// later Prime or ExecuteRound fails with ErrAborted: the inbox of the failed
// round is gone and the next round would step on incomplete halos.
func (s *Scheduler[K, M, V]) Err() error {
	return s.aborted
}

func (s *Scheduler[K, M, V]) checkAborted() error {
	if s.aborted == nil {
		return nil
	}
	return errors.NewContractError(fmt.Sprintf("round %d after a failed round", s.round), errors.Join(errors.ErrAborted, s.aborted)).
		WithRound(s.round).WithRank(s.comm.Rank())
}

// Prime seeds round 0 with the messages of every task implementing
// automaton.Primer. Other tasks start round 0 with an empty incoming set.
// Every rank must prime, or none.
func (s *Scheduler[K, M, V]) Prime(ctx context.Context, tasks []automaton.Automaton[K, M, V]) error {
	if err := s.checkAborted(); err != nil {
		return err
	}
	if s.round != 0 || s.primed {
		return fmt.Errorf("%w: prime after round %d", errors.ErrInvalidInput, s.round)
	}

	ctx, span := s.startSpan(ctx, "scheduler.prime", len(tasks))
	defer span.End()
	start := time.Now()

	plan, err := s.plan(tasks)
	if err != nil {
		return s.fail(span, err, 0)
	}
	outgoing := make([]map[K]M, len(tasks))
	for i, task := range tasks {
		p, ok := task.(automaton.Primer[K, M])
		if !ok {
			continue
		}
		out := p.Prime()
		if err := automaton.CheckOutgoing(task.Key(), task.Neighbors(), out); err != nil {
			return s.fail(span, err, 0)
		}
		outgoing[i] = out
	}

	inbox, st, err := s.exchange(ctx, 0, tasks, plan, outgoing)
	if err != nil {
		return s.fail(span, err, 0)
	}
	s.inbox = inbox
	s.primed = true
	s.finish(0, true, len(tasks), st, time.Since(start))
	return nil
}

// ExecuteRound advances tasks by one round and returns the next task set in
// the same order. tasks must be exactly the keys the assignment gives this
// rank, or a subset whose neighbors are all either in the subset or remote.
func (s *Scheduler[K, M, V]) ExecuteRound(ctx context.Context, tasks []automaton.Automaton[K, M, V]) ([]automaton.Automaton[K, M, V], error) {
	if err := s.checkAborted(); err != nil {
		return nil, err
	}
	round := s.round
	ctx, span := s.startSpan(ctx, "scheduler.round", len(tasks))
	defer span.End()
	start := time.Now()

	plan, err := s.plan(tasks)
	if err != nil {
		return nil, s.fail(span, err, round)
	}

	incoming := make([]map[K]M, len(tasks))
	for i, task := range tasks {
		incoming[i] = s.inbox.Take(task.Key())
	}

	next := make([]automaton.Automaton[K, M, V], len(tasks))
	outgoing := make([]map[K]M, len(tasks))
	err = s.strategy.Run(ctx, len(tasks), func(i int) error {
		task := tasks[i]
		stepped, out := task.Step(incoming[i])
		if stepped.Key() != task.Key() {
			return errors.NewContractError("step returned a different key", errors.ErrKeyChanged).
				WithKey(task.Key()).WithPeerKey(stepped.Key())
		}
		if err := automaton.CheckOutgoing(task.Key(), task.Neighbors(), out); err != nil {
			return err
		}
		next[i], outgoing[i] = stepped, out
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err, round)
	}

	inbox, st, err := s.exchange(ctx, round+1, tasks, plan, outgoing)
	if err != nil {
		return nil, s.fail(span, err, round)
	}
	for _, task := range next {
		if err := automaton.CheckIncoming(task.Key(), task.Neighbors(), inbox[task.Key()]); err != nil {
			return nil, s.fail(span, err, round)
		}
	}

	s.inbox = inbox
	s.round++
	s.finish(round, false, len(tasks), st, time.Since(start))
	return next, nil
}

// Advance primes when nothing has run yet and then executes rounds rounds.
func (s *Scheduler[K, M, V]) Advance(ctx context.Context, tasks []automaton.Automaton[K, M, V], rounds int) ([]automaton.Automaton[K, M, V], error) {
	if err := s.checkAborted(); err != nil {
		return nil, err
	}
	if s.round == 0 && !s.primed {
		if err := s.Prime(ctx, tasks); err != nil {
			return nil, err
		}
	}
	var err error
	for range rounds {
		if tasks, err = s.ExecuteRound(ctx, tasks); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// routing is the per-call view of which keys are local and which ranks this
// rank exchanges frames with.
type routing[K comparable] struct {
	local map[K]bool
	peers []int
}

func (s *Scheduler[K, M, V]) plan(tasks []automaton.Automaton[K, M, V]) (routing[K], error) {
	me := s.comm.Rank()
	r := routing[K]{local: make(map[K]bool, len(tasks))}
	peerSet := make(map[int]bool)

	for _, task := range tasks {
		key := task.Key()
		if r.local[key] {
			return r, errors.NewContractError("task keys are not unique", errors.ErrDuplicateTask).WithKey(key)
		}
		owner, ok := s.assignment.Rank(key)
		if !ok {
			return r, errors.NewContractError("task has no owning rank", errors.ErrUnassignedKey).WithKey(key)
		}
		if owner != me {
			return r, errors.NewContractError(fmt.Sprintf("task is owned by rank %d", owner), errors.ErrForeignKey).WithKey(key)
		}
		r.local[key] = true

		for _, n := range task.Neighbors() {
			owner, ok := s.assignment.Rank(n)
			if !ok {
				return r, errors.NewContractError("neighbor has no owning rank", errors.ErrUnassignedKey).
					WithKey(key).WithPeerKey(n)
			}
			if owner != me {
				peerSet[owner] = true
			}
		}
	}

	for p := range peerSet {
		if p < 0 || p >= s.comm.Size() {
			return r, errors.NewContractError(fmt.Sprintf("assignment names rank %d of %d", p, s.comm.Size()), errors.ErrPeerOutOfRange)
		}
		r.peers = append(r.peers, p)
	}
	slices.Sort(r.peers)
	return r, nil
}

func (s *Scheduler[K, M, V]) startSpan(ctx context.Context, name string, tasks int) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("gridflow.rank", s.comm.Rank()),
		attribute.Int64("gridflow.round", int64(s.round)),
		attribute.Int("gridflow.tasks", tasks),
	))
}

// fail stamps err with the round and rank, records it on the span and
// returns it.
func (s *Scheduler[K, M, V]) fail(span trace.Span, err error, round uint64) error {
	me := s.comm.Rank()
	var contract *errors.ContractError
	var codec *errors.CodecError
	var transport *errors.TransportError
	switch {
	case errors.As(err, &contract):
		contract.WithRound(round).WithRank(me)
	case errors.As(err, &codec):
		codec.WithRound(round).WithRank(me)
	case errors.As(err, &transport):
		transport.WithRound(round)
	}
	s.aborted = err
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.WithRound(round).Error("round aborted", "error", err.Error(), "severity", errors.GetSeverity(err).String())
	return err
}

func (s *Scheduler[K, M, V]) finish(round uint64, primed bool, tasks int, st stats, elapsed time.Duration) {
	phase := "step"
	if primed {
		phase = "prime"
	}
	s.logger.WithRound(round).WithPhase(phase).Debug("round completed",
		"tasks", tasks,
		"peers", st.peers,
		"local_messages", st.local,
		"frames_sent", st.framesSent,
		"bytes_sent", st.bytesSent,
		"bytes_received", st.bytesReceived,
		"elapsed_us", elapsed.Microseconds())

	if s.bus == nil {
		return
	}
	e := event.NewRoundCompletedEvent(s.comm.Rank(), round, primed)
	e.LocalTasks = tasks
	e.LocalMessages = st.local
	e.FramesSent = st.framesSent
	e.BytesSent = st.bytesSent
	e.BytesReceived = st.bytesReceived
	e.Duration = elapsed
	s.bus.Publish(e)
}
