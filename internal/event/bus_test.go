package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBusSubscribeAndPublish(t *testing.T) {
	bus := NewBus(nil)

	var got Event
	id := bus.Subscribe(TypeRoundCompleted, func(e Event) { got = e })
	if id == "" {
		t.Fatal("Subscribe should return a non-empty ID")
	}

	bus.Publish(NewRoundCompletedEvent(2, 7, false))
	round, ok := got.(RoundCompletedEvent)
	if !ok {
		t.Fatalf("handler received %T", got)
	}
	if round.Rank != 2 || round.Round != 7 {
		t.Errorf("event = %+v", round)
	}
	if round.Timestamp().IsZero() {
		t.Error("timestamp not set")
	}
}

func TestBusOnlyMatchingType(t *testing.T) {
	bus := NewBus(nil)
	var folds int
	bus.Subscribe(TypeFoldCompleted, func(Event) { folds++ })

	bus.Publish(NewRoundCompletedEvent(0, 1, false))
	bus.Publish(NewFoldCompletedEvent(0, 10, 0.1, 10, time.Second, 1, 1))
	if folds != 1 {
		t.Errorf("fold handler called %d times, want 1", folds)
	}
}

func TestBusOrdering(t *testing.T) {
	bus := NewBus(nil)
	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeRunStarted, func(Event) { order = append(order, "first") })
	bus.Subscribe(TypeRunStarted, func(Event) { order = append(order, "second") })

	bus.Publish(NewRunStartedEvent(0, 1, 16, 16, nil))

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)
	var calls int
	id := bus.Subscribe(TypeRunFinished, func(Event) { calls++ })
	other := bus.Subscribe(TypeRunFinished, func(Event) {})

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for a live subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe returned true")
	}
	bus.Publish(NewRunFinishedEvent(0, 10, 1, time.Second, nil))
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	bus.Unsubscribe(other)
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBusRecoversFromPanics(t *testing.T) {
	bus := NewBus(nil)
	var reached bool
	bus.Subscribe(TypeSnapshotWritten, func(Event) { panic("boom") })
	bus.Subscribe(TypeSnapshotWritten, func(Event) { reached = true })

	bus.Publish(NewSnapshotWrittenEvent(0, "state.0000.cbor", 10, 0.5, 128))
	if !reached {
		t.Error("handler after a panicking handler was not called")
	}
}

func TestBusClear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeRunStarted, func(Event) {})
	bus.SubscribeAll(func(Event) {})
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)
	var count atomic.Int64
	bus.SubscribeAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for rank := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 100 {
				bus.Publish(NewRoundCompletedEvent(rank, uint64(round), false))
			}
		}()
	}
	wg.Wait()
	if count.Load() != 800 {
		t.Errorf("handled %d events, want 800", count.Load())
	}
}

func TestRunFinishedSucceeded(t *testing.T) {
	if !NewRunFinishedEvent(0, 1, 1, 0, nil).Succeeded() {
		t.Error("nil error should be success")
	}
	if NewRunFinishedEvent(0, 1, 1, 0, errors.New("x")).Succeeded() {
		t.Error("non-nil error should be failure")
	}
}
