// Package event provides a synchronous pub-sub bus for run progress.
//
// The scheduler and the driver publish events as rounds, folds, snapshots
// and whole runs complete; the CLI subscribes to print the throughput report
// and tests subscribe to observe progress without reaching into the
// scheduler. Publishers never know who is listening.
//
// # Main Types
//
//   - [Event]: EventType() and Timestamp()
//   - [Bus]: thread-safe synchronous dispatcher
//   - [Handler]: func(Event)
//
// # Events
//
//   - [RunStartedEvent] ("run.started")
//   - [RoundCompletedEvent] ("round.completed")
//   - [FoldCompletedEvent] ("fold.completed")
//   - [SnapshotWrittenEvent] ("snapshot.written")
//   - [RunFinishedEvent] ("run.finished")
//
// # Thread Safety
//
// Ranks running as goroutines share one Bus. Handlers run on the publishing
// goroutine, so a handler shared by several ranks must synchronize its own
// state. A panicking handler is recovered and logged; delivery continues to
// the remaining handlers.
package event
