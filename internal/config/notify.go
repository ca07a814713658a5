package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	NotifyBackendNone    = "none"
	NotifyBackendRedis   = "redis"
	NotifyBackendKafka   = "kafka"
	NotifyBackendDiscord = "discord"
)

type NotifyConfig struct {
	Backend      string `env:"NOTIFY_BACKEND" envDefault:"none"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisChannel string `env:"REDIS_CHANNEL_PREFIX" envDefault:"wagerboard"`
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"wagerboard.events"`

	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	QueueSize      int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"1024"`
	RetryMax       int           `env:"NOTIFY_RETRY_MAX" envDefault:"3"`
	RetryBase      time.Duration `env:"NOTIFY_RETRY_BASE" envDefault:"500ms"`
	RequestTimeout time.Duration `env:"NOTIFY_REQUEST_TIMEOUT" envDefault:"5s"`
}

func LoadNotify() (NotifyConfig, error) {
	var cfg NotifyConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	switch cfg.Backend {
	case NotifyBackendNone, NotifyBackendRedis, NotifyBackendKafka:
		return cfg, nil
	case NotifyBackendDiscord:
		if cfg.DiscordWebhookURL == "" {
			return cfg, fmt.Errorf("DISCORD_WEBHOOK_URL is required for discord notifications")
		}
		return cfg, nil
	default:
		return cfg, fmt.Errorf("unknown NOTIFY_BACKEND %q", cfg.Backend)
	}
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9090"`
}

func LoadMetrics() (MetricsConfig, error) {
	var cfg MetricsConfig
	err := env.Parse(&cfg)
	return cfg, err
}
