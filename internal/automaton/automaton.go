package automaton

// Automaton is one unit of work in a round-based computation. K identifies
// tasks, M is the message type exchanged with neighbors, and V is the
// externally visible result.
type Automaton[K comparable, M any, V any] interface {
	// Key returns the task's stable identity.
	Key() K

	// Neighbors returns the keys this task exchanges messages with. The set
	// must not change between rounds.
	Neighbors() []K

	// Step consumes this round's incoming messages, keyed by source, and
	// returns the task for the next round together with one outgoing message
	// per neighbor, keyed by destination.
	Step(incoming map[K]M) (Automaton[K, M, V], map[K]M)

	// Value returns the task's current result without consuming it.
	Value() V
}

// Primer is implemented by tasks that can produce their neighbors' round-0
// input from their initial state.
type Primer[K comparable, M any] interface {
	Prime() map[K]M
}

// Envelope is a message in transit between two tasks.
type Envelope[K comparable, M any] struct {
	_       struct{} `cbor:",toarray"`
	From    K
	To      K
	Message M
}

// Coder converts envelopes to bytes for messages that leave the local rank.
// Encodings must be self-describing and round-trip exactly.
type Coder[K comparable, M any] interface {
	Encode(env Envelope[K, M]) ([]byte, error)
	Decode(data []byte) (Envelope[K, M], error)
}
