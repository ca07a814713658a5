package config

import "testing"

func TestLoadNotifyDefaults(t *testing.T) {
	cfg, err := LoadNotify()
	if err != nil {
		t.Fatalf("LoadNotify() error = %v", err)
	}
	if cfg.Backend != NotifyBackendNone {
		t.Fatalf("Backend = %q, want none", cfg.Backend)
	}
	if cfg.KafkaTopic != "wagerboard.events" {
		t.Fatalf("KafkaTopic = %q", cfg.KafkaTopic)
	}
}

func TestLoadNotifyOverrides(t *testing.T) {
	t.Setenv("NOTIFY_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadNotify()
	if err != nil {
		t.Fatalf("LoadNotify() error = %v", err)
	}
	if cfg.Backend != NotifyBackendRedis || cfg.RedisAddr != "redis:6380" {
		t.Fatalf("unexpected notify config: %+v", cfg)
	}
}

func TestLoadNotifyRejectsUnknownBackend(t *testing.T) {
	t.Setenv("NOTIFY_BACKEND", "nats")

	if _, err := LoadNotify(); err == nil {
		t.Fatal("LoadNotify() expected error")
	}
}

func TestLoadMetricsDefaults(t *testing.T) {
	cfg, err := LoadMetrics()
	if err != nil {
		t.Fatalf("LoadMetrics() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", cfg.Addr)
	}
}

func TestLoadNotifyDiscordRequiresWebhook(t *testing.T) {
	t.Setenv("NOTIFY_BACKEND", "discord")

	if _, err := LoadNotify(); err == nil {
		t.Fatal("LoadNotify() expected error without DISCORD_WEBHOOK_URL")
	}

	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.test/api/webhooks/1/abc")
	cfg, err := LoadNotify()
	if err != nil {
		t.Fatalf("LoadNotify() error = %v", err)
	}
	if cfg.RetryMax != 3 || cfg.RetryBase.String() != "500ms" {
		t.Fatalf("unexpected retry settings: %+v", cfg)
	}
}
