package automaton

import (
	"github.com/jzrake/gridflow/internal/errors"
)

// Local advances a task set entirely in-process, with no communicator and no
// encoding. It defines the results the distributed scheduler must reproduce.
type Local[K comparable, M any, V any] struct {
	inbox Inbox[K, M]
	round uint64
}

// NewLocal returns a Local executor with an empty round-0 inbox.
func NewLocal[K comparable, M any, V any]() *Local[K, M, V] {
	return &Local[K, M, V]{inbox: Inbox[K, M]{}}
}

// Round returns the number of completed rounds.
func (l *Local[K, M, V]) Round() uint64 {
	return l.round
}

// Prime seeds the round-0 inbox from every task that implements Primer.
func (l *Local[K, M, V]) Prime(tasks []Automaton[K, M, V]) error {
	keys := keySet(tasks)
	inbox := Inbox[K, M]{}
	for _, task := range tasks {
		p, ok := task.(Primer[K, M])
		if !ok {
			continue
		}
		if err := deliverAll(inbox, keys, task.Key(), task.Neighbors(), p.Prime()); err != nil {
			return err
		}
	}
	l.inbox = inbox
	return nil
}

// Step runs one round over tasks and returns the next task set in the same
// order.
func (l *Local[K, M, V]) Step(tasks []Automaton[K, M, V]) ([]Automaton[K, M, V], error) {
	keys := keySet(tasks)
	if len(keys) != len(tasks) {
		return nil, errors.NewContractError("task keys are not unique", errors.ErrDuplicateTask).WithRound(l.round)
	}

	next := make([]Automaton[K, M, V], len(tasks))
	inbox := Inbox[K, M]{}
	for i, task := range tasks {
		stepped, outgoing := task.Step(l.inbox.Take(task.Key()))
		if stepped.Key() != task.Key() {
			return nil, errors.NewContractError("step returned a different key", errors.ErrKeyChanged).
				WithRound(l.round).WithKey(task.Key()).WithPeerKey(stepped.Key())
		}
		if err := deliverAll(inbox, keys, task.Key(), task.Neighbors(), outgoing); err != nil {
			return nil, withRound(err, l.round)
		}
		next[i] = stepped
	}
	for _, task := range next {
		if err := CheckIncoming(task.Key(), task.Neighbors(), inbox[task.Key()]); err != nil {
			return nil, withRound(err, l.round)
		}
	}

	l.inbox = inbox
	l.round++
	return next, nil
}

// Run is a convenience for priming (when any task is a Primer) and stepping
// rounds times.
func (l *Local[K, M, V]) Run(tasks []Automaton[K, M, V], rounds int) ([]Automaton[K, M, V], error) {
	if l.round == 0 {
		if err := l.Prime(tasks); err != nil {
			return nil, err
		}
	}
	var err error
	for range rounds {
		if tasks, err = l.Step(tasks); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func keySet[K comparable, M any, V any](tasks []Automaton[K, M, V]) map[K]bool {
	keys := make(map[K]bool, len(tasks))
	for _, t := range tasks {
		keys[t.Key()] = true
	}
	return keys
}

func deliverAll[K comparable, M any](inbox Inbox[K, M], local map[K]bool, from K, neighbors []K, outgoing map[K]M) error {
	if err := CheckOutgoing(from, neighbors, outgoing); err != nil {
		return err
	}
	for to, msg := range outgoing {
		if !local[to] {
			return errors.NewContractError("destination is not a known task", errors.ErrUnassignedKey).
				WithKey(from).WithPeerKey(to)
		}
		if err := inbox.Deliver(Envelope[K, M]{From: from, To: to, Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

func withRound(err error, round uint64) error {
	var contract *errors.ContractError
	if errors.As(err, &contract) {
		return contract.WithRound(round)
	}
	return err
}
