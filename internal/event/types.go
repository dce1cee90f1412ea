package event

import "time"

// Event is the interface that all events implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeRunStarted      = "run.started"
	TypeRoundCompleted  = "round.completed"
	TypeFoldCompleted   = "fold.completed"
	TypeSnapshotWritten = "snapshot.written"
	TypeRunFinished     = "run.finished"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// RunStartedEvent is emitted by each rank once pre-flight checks pass.
type RunStartedEvent struct {
	baseEvent
	Rank       int
	Size       int
	Blocks     int // total patches in the run
	LocalTasks int // patches owned by this rank
	Peers      []int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(rank, size, blocks, localTasks int, peers []int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent:  newBaseEvent(TypeRunStarted),
		Rank:       rank,
		Size:       size,
		Blocks:     blocks,
		LocalTasks: localTasks,
		Peers:      peers,
	}
}

// RoundCompletedEvent is emitted by the scheduler after every round,
// including the priming exchange (Primed set, Round 0).
type RoundCompletedEvent struct {
	baseEvent
	Rank          int
	Round         uint64 // the round that was executed
	Primed        bool
	LocalTasks    int
	LocalMessages int // messages delivered without leaving the rank
	FramesSent    int
	BytesSent     int
	BytesReceived int
	Duration      time.Duration
}

// NewRoundCompletedEvent creates a RoundCompletedEvent.
func NewRoundCompletedEvent(rank int, round uint64, primed bool) RoundCompletedEvent {
	return RoundCompletedEvent{
		baseEvent: newBaseEvent(TypeRoundCompleted),
		Rank:      rank,
		Round:     round,
		Primed:    primed,
	}
}

// FoldCompletedEvent is emitted after each fold of rounds with the
// throughput measured over it.
type FoldCompletedEvent struct {
	baseEvent
	Rank          int
	Iteration     uint64  // rounds completed so far
	Time          float64 // simulated time
	Rounds        int     // rounds in this fold
	Elapsed       time.Duration
	Mzps          float64 // million zone updates per second, whole run
	MzpsPerThread float64
}

// NewFoldCompletedEvent creates a FoldCompletedEvent.
func NewFoldCompletedEvent(rank int, iteration uint64, simTime float64, rounds int, elapsed time.Duration, mzps, perThread float64) FoldCompletedEvent {
	return FoldCompletedEvent{
		baseEvent:     newBaseEvent(TypeFoldCompleted),
		Rank:          rank,
		Iteration:     iteration,
		Time:          simTime,
		Rounds:        rounds,
		Elapsed:       elapsed,
		Mzps:          mzps,
		MzpsPerThread: perThread,
	}
}

// SnapshotWrittenEvent is emitted when a rank has persisted its patches.
type SnapshotWrittenEvent struct {
	baseEvent
	Rank      int
	Path      string
	Iteration uint64
	Time      float64
	Bytes     int
}

// NewSnapshotWrittenEvent creates a SnapshotWrittenEvent.
func NewSnapshotWrittenEvent(rank int, path string, iteration uint64, simTime float64, bytes int) SnapshotWrittenEvent {
	return SnapshotWrittenEvent{
		baseEvent: newBaseEvent(TypeSnapshotWritten),
		Rank:      rank,
		Path:      path,
		Iteration: iteration,
		Time:      simTime,
		Bytes:     bytes,
	}
}

// RunFinishedEvent is emitted when a rank leaves the fold loop, whether it
// reached the final time or aborted.
type RunFinishedEvent struct {
	baseEvent
	Rank      int
	Iteration uint64
	Time      float64
	Elapsed   time.Duration
	Err       error
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(rank int, iteration uint64, simTime float64, elapsed time.Duration, err error) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent: newBaseEvent(TypeRunFinished),
		Rank:      rank,
		Iteration: iteration,
		Time:      simTime,
		Elapsed:   elapsed,
		Err:       err,
	}
}

// Succeeded reports whether the run reached its final time.
func (e RunFinishedEvent) Succeeded() bool {
	return e.Err == nil
}
