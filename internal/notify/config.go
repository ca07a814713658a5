package notify

import (
	"context"
	"fmt"

	"wagerboard/internal/config"
)

// FromConfig builds the publisher selected by cfg.Backend. Anything other
// than the none backend comes back wrapped in a Dispatcher that is not yet
// started.
func FromConfig(ctx context.Context, cfg config.NotifyConfig) (Publisher, error) {
	var pub Publisher
	switch cfg.Backend {
	case "", config.NotifyBackendNone:
		return Nop{}, nil
	case config.NotifyBackendRedis:
		rdb, err := ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		pub = NewRedisPublisher(rdb, cfg.RedisChannel)
	case config.NotifyBackendKafka:
		pub = NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.NotifyBackendDiscord:
		pub = NewDiscordPublisher(cfg.DiscordWebhookURL, cfg.RequestTimeout)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
	return NewDispatcher(pub, DispatcherConfig{
		QueueSize:   cfg.QueueSize,
		RetryMax:    cfg.RetryMax,
		RetryBase:   cfg.RetryBase,
		SendTimeout: cfg.RequestTimeout,
	}), nil
}
