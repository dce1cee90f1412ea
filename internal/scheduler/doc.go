// Package scheduler advances a distributed task set one synchronized round
// at a time.
//
// Each rank holds a Scheduler for its own tasks. ExecuteRound steps every
// local task with the messages delivered at the end of the previous round,
// routes the outgoing messages by the owner of each destination key, and
// exchanges them with peer ranks before returning. Messages for local
// destinations never touch the coder; everything else is wrapped in an
// Envelope, encoded, and batched into one Frame per peer rank.
//
// # Rounds and Frames
//
// Frames are tagged with the round that will consume them: Prime produces
// frames tagged 0, and ExecuteRound(n) produces frames tagged n+1. A frame
// with any other tag, or from a rank other than the one it was received from,
// aborts the round. Every pair of peer ranks exchanges exactly one frame per
// round, possibly empty, so the exchange doubles as a barrier between
// neighboring ranks.
//
// Peer ranks are derived from the owners of local tasks' neighbors. Neighbor
// relations are symmetric, so both sides of a pair agree on it without
// negotiation, and a rank never talks to a rank that owns none of its
// neighbors.
//
// # Local Parallelism
//
// Steps within a rank are independent and run through a [Strategy]: [Serial],
// [ErrGroup] (golang.org/x/sync/errgroup), or [Pool] (sourcegraph/conc). The
// choice never changes results.
//
// # Failure
//
// Contract, codec, and transport failures abort the round and are returned
// as-is; the scheduler never retries. A failed round aborts the Scheduler:
// every later Prime or ExecuteRound returns a ContractError wrapping
// [errors.ErrAborted] and the original failure. Recovery means a new
// Scheduler seeded from a fold boundary.
package scheduler
