package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []Message
	closed   bool
	notify   chan struct{}
}

func newFlakyPublisher(failures int) *flakyPublisher {
	return &flakyPublisher{failures: failures, notify: make(chan struct{}, 16)}
}

func (p *flakyPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.notify <- struct{}{}
	}()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker down")
	}
	p.got = append(p.got, msg)
	return nil
}

func (p *flakyPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *flakyPublisher) snapshot() (int, []Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]Message(nil), p.got...)
}

func waitCalls(t *testing.T, p *flakyPublisher, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-p.notify:
		case <-deadline:
			calls, _ := p.snapshot()
			t.Fatalf("timed out waiting for %d publish calls, saw %d", n, calls)
		}
	}
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	pub := newFlakyPublisher(2)
	d := NewDispatcher(pub, DispatcherConfig{RetryMax: 3, RetryBase: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.Publish(ctx, Message{Type: TypeBetPlaced, ScopeID: "guild-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitCalls(t, pub, 3)

	calls, got := pub.snapshot()
	if calls != 3 || len(got) != 1 {
		t.Fatalf("calls=%d delivered=%d, want 3 and 1", calls, len(got))
	}
	if got[0].At.IsZero() {
		t.Fatal("expected Publish to stamp the message time")
	}
}

func TestDispatcherGivesUpAfterRetryMax(t *testing.T) {
	pub := newFlakyPublisher(100)
	d := NewDispatcher(pub, DispatcherConfig{RetryMax: 1, RetryBase: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	_ = d.Publish(ctx, Message{Type: TypeEventSettled})
	waitCalls(t, pub, 2)

	select {
	case <-pub.notify:
		t.Fatal("unexpected delivery attempt after retry budget")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	pub := newFlakyPublisher(0)
	d := NewDispatcher(pub, DispatcherConfig{QueueSize: 1})

	// Worker not started, so the second message has nowhere to go.
	if err := d.Publish(context.Background(), Message{Type: "a"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := d.Publish(context.Background(), Message{Type: "b"}); err != nil {
		t.Fatalf("Publish() on full queue error = %v", err)
	}
	if len(d.jobs) != 1 {
		t.Fatalf("queue len = %d, want 1", len(d.jobs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	waitCalls(t, pub, 1)
	cancel()
	d.Wait()

	_, got := pub.snapshot()
	if len(got) != 1 || got[0].Type != "a" {
		t.Fatalf("delivered = %+v, want only message a", got)
	}
}

func TestDispatcherCloseClosesPublisher(t *testing.T) {
	pub := newFlakyPublisher(0)
	d := NewDispatcher(pub, DispatcherConfig{})
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pub.closed {
		t.Fatal("expected wrapped publisher to be closed")
	}
	if err := NewDispatcher(Nop{}, DispatcherConfig{}).Close(); err != nil {
		t.Fatalf("Close() on Nop error = %v", err)
	}
}
