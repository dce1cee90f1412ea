package comm

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jzrake/gridflow/internal/errors"
)

func TestNullLoopback(t *testing.T) {
	n := NewNull()
	ctx := context.Background()

	if n.Rank() != 0 || n.Size() != 1 {
		t.Fatalf("Null rank/size = %d/%d, want 0/1", n.Rank(), n.Size())
	}

	buf := []byte("halo")
	if err := n.Send(ctx, 0, buf); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	buf[0] = 'X'
	if err := n.Send(ctx, 0, []byte("second")); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	for _, want := range []string{"halo", "second"} {
		got, err := n.Receive(ctx, 0)
		if err != nil {
			t.Fatalf("Receive() = %v", err)
		}
		if string(got) != want {
			t.Errorf("Receive() = %q, want %q", got, want)
		}
	}

	if _, err := n.Receive(ctx, 0); !errors.Is(err, errors.ErrTransport) {
		t.Errorf("Receive() on empty queue = %v, want ErrTransport", err)
	}
}

func TestNullErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("peer out of range", func(t *testing.T) {
		n := NewNull()
		err := n.Send(ctx, 1, nil)
		if !errors.Is(err, errors.ErrPeerOutOfRange) {
			t.Fatalf("Send(1) = %v, want ErrPeerOutOfRange", err)
		}
		if errors.IsRetryable(err) {
			t.Error("out-of-range peer should not be retryable")
		}
		if _, err := n.Receive(ctx, -1); !errors.Is(err, errors.ErrPeerOutOfRange) {
			t.Errorf("Receive(-1) = %v, want ErrPeerOutOfRange", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		n := NewNull()
		_ = n.Close()
		if err := n.Send(ctx, 0, nil); !errors.Is(err, errors.ErrClosed) {
			t.Errorf("Send() after Close = %v, want ErrClosed", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		n := NewNull()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := n.Send(cctx, 0, nil); !errors.Is(err, errors.ErrCanceled) {
			t.Errorf("Send() with canceled context = %v, want ErrCanceled", err)
		}
	})
}

func TestHubAllToAll(t *testing.T) {
	const size = 4
	hub, err := NewHub(size, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, size)
	for _, c := range hub.Comms() {
		wg.Add(1)
		go func(c *Local) {
			defer wg.Done()
			for dest := range size {
				if dest == c.Rank() {
					continue
				}
				if err := c.Send(ctx, dest, []byte(fmt.Sprintf("%d->%d", c.Rank(), dest))); err != nil {
					errs <- err
					return
				}
			}
			for src := range size {
				if src == c.Rank() {
					continue
				}
				got, err := c.Receive(ctx, src)
				if err != nil {
					errs <- err
					return
				}
				if want := fmt.Sprintf("%d->%d", src, c.Rank()); string(got) != want {
					errs <- fmt.Errorf("rank %d received %q from %d, want %q", c.Rank(), got, src, want)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	sent, received := hub.Frames()
	if sent != size*(size-1) || received != sent {
		t.Errorf("Frames() = %d/%d, want %d/%d", sent, received, size*(size-1), size*(size-1))
	}
}

func TestHubPairOrdering(t *testing.T) {
	hub, _ := NewHub(2, 8)
	defer hub.Close()
	a, b := hub.Comm(0), hub.Comm(1)
	ctx := context.Background()

	for i := range 8 {
		if err := a.Send(ctx, 1, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for i := range 8 {
		got, err := b.Receive(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{byte(i)}) {
			t.Fatalf("frame %d = %v", i, got)
		}
	}
}

func TestHubReceiveBlocksUntilCanceled(t *testing.T) {
	hub, _ := NewHub(2, 1)
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := hub.Comm(1).Receive(ctx, 0)
	if !errors.Is(err, errors.ErrCanceled) {
		t.Fatalf("Receive() = %v, want ErrCanceled", err)
	}
	var transportErr *errors.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error %T is not a *TransportError", err)
	}
	if peer, ok := transportErr.Peer(); !ok || peer != 0 {
		t.Errorf("Peer() = %d, %v; want 0, true", peer, ok)
	}
}

func TestHubCloseUnblocks(t *testing.T) {
	hub, _ := NewHub(2, 1)
	done := make(chan error, 1)
	go func() {
		_, err := hub.Comm(0).Receive(context.Background(), 1)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_ = hub.Comm(1).Close()

	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrClosed) {
			t.Errorf("Receive() after Close = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}

	if err := hub.Comm(0).Send(context.Background(), 1, nil); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}

func TestNewHubRejectsEmptyGroup(t *testing.T) {
	if _, err := NewHub(0, 1); err == nil {
		t.Fatal("NewHub(0) should fail")
	}
}
