package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wagerboard/internal/config"
	"wagerboard/internal/notify"
)

func TestOpenStoreSQLite(t *testing.T) {
	st, err := openStore(context.Background(), config.ServerConfig{
		StoreDriver: config.StoreDriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "wb.db"),
	})
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), config.ServerConfig{StoreDriver: "mongo"}); err == nil {
		t.Fatal("openStore() expected error for unknown driver")
	}
}

// slowPublisher records the order of deliveries and Close.
type slowPublisher struct {
	started chan struct{}
	once    sync.Once
	mu      sync.Mutex
	events  []string
}

func (p *slowPublisher) Publish(context.Context, notify.Message) error {
	p.once.Do(func() { close(p.started) })
	time.Sleep(50 * time.Millisecond)
	p.record("delivered")
	return nil
}

func (p *slowPublisher) Close() error {
	p.record("closed")
	return nil
}

func (p *slowPublisher) record(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func TestStopNotifierWaitsForInFlightDelivery(t *testing.T) {
	pub := &slowPublisher{started: make(chan struct{})}
	d := notify.NewDispatcher(pub, notify.DispatcherConfig{QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	_ = d.Publish(ctx, notify.Message{Type: notify.TypeBetPlaced, ScopeID: "guild-1"})
	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}
	stopNotifier(cancel, d)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 || pub.events[0] != "delivered" || pub.events[1] != "closed" {
		t.Fatalf("events = %v, want delivered then closed", pub.events)
	}
}
