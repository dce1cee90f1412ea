// Package automaton defines the contract every pluggable task type satisfies
// and the serialization boundary for messages that cross ranks.
//
// # Main Types
//
//   - [Automaton]: a task identified by a key, aware of its neighbor keys,
//     advanced one round at a time by Step
//   - [Primer]: optional; lets a task seed its neighbors' round-0 inputs
//   - [Envelope]: a message together with its source and destination keys
//   - [Coder]: encodes envelopes to self-describing bytes and back
//   - [Inbox]: per-destination incoming sets with duplicate detection
//   - [Local]: a purely local, sequential executor used as the reference
//     semantics for the distributed scheduler
//
// # Round Semantics
//
// A round hands each task the messages its neighbors produced in the previous
// round and collects the messages it owes them for the next one. Messages
// produced in round n are never visible to any task before round n+1, so a
// task's state at n+1 depends only on its own state and its neighbors' data at
// the end of round n.
//
// Step must be a pure function of the task and its incoming set, must not
// depend on iteration order of that set, and must emit exactly one message
// per declared neighbor. [CheckOutgoing] and [CheckIncoming] enforce the
// last rule; violations are [errors.ContractError]s and abort the round.
package automaton
