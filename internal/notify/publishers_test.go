package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wagerboard/internal/config"
)

func TestDiscordPublisherPostsEmbed(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pub := NewDiscordPublisher(srv.URL, time.Second)
	err := pub.Publish(context.Background(), Message{
		Type:    TypeEventSettled,
		ScopeID: "guild-1",
		EventID: "ev-1",
		Data:    map[string]any{"winner": "red", "payouts": 2},
		At:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "Event settled" || e.Color != colorGold {
		t.Fatalf("unexpected embed header: %+v", e)
	}
	if e.Footer == nil || e.Footer.Text != "scope guild-1" {
		t.Fatalf("footer = %+v", e.Footer)
	}
	if e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
	want := []string{"event", "payouts", "winner"}
	if len(e.Fields) != len(want) {
		t.Fatalf("fields = %+v", e.Fields)
	}
	for i, name := range want {
		if e.Fields[i].Name != name {
			t.Fatalf("field[%d] = %q, want %q", i, e.Fields[i].Name, name)
		}
	}
}

func TestDiscordPublisherReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pub := NewDiscordPublisher(srv.URL, time.Second)
	if err := pub.Publish(context.Background(), Message{Type: TypeBetPlaced}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestRedisPublisherChannels(t *testing.T) {
	p := NewRedisPublisher(nil, "")
	if p.GlobalChannel() != "wagerboard:events" {
		t.Fatalf("GlobalChannel() = %q", p.GlobalChannel())
	}
	if p.ScopeChannel("guild-9") != "wagerboard:scope:guild-9" {
		t.Fatalf("ScopeChannel() = %q", p.ScopeChannel("guild-9"))
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("splitBrokers() = %v", got)
	}
}

func TestFromConfig(t *testing.T) {
	pub, err := FromConfig(context.Background(), config.NotifyConfig{Backend: config.NotifyBackendNone})
	if err != nil {
		t.Fatalf("FromConfig(none) error = %v", err)
	}
	if _, ok := pub.(Nop); !ok {
		t.Fatalf("FromConfig(none) = %T, want Nop", pub)
	}

	pub, err = FromConfig(context.Background(), config.NotifyConfig{
		Backend:           config.NotifyBackendDiscord,
		DiscordWebhookURL: "http://127.0.0.1:1/hook",
	})
	if err != nil {
		t.Fatalf("FromConfig(discord) error = %v", err)
	}
	d, ok := pub.(*Dispatcher)
	if !ok {
		t.Fatalf("FromConfig(discord) = %T, want *Dispatcher", pub)
	}
	if _, ok := d.pub.(*DiscordPublisher); !ok {
		t.Fatalf("wrapped publisher = %T", d.pub)
	}

	if _, err := FromConfig(context.Background(), config.NotifyConfig{Backend: "nats"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
