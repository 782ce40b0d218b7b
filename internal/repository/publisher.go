package repository

import (
	"context"
	"fmt"
	"strings"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"
	pkgcache "TokenPulse/pkg/cache"
	"TokenPulse/pkg/util"
)

// ChannelPublisher is satisfied by *cache.RedisCache.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisPublisher sends update events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  ChannelPublisher
	channel string
}

// NewRedisPublisher creates a publisher on channel. The client's lifecycle
// belongs to the caller.
func NewRedisPublisher(client ChannelPublisher, channel string) repository.UpdatePublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev models.UpdateEvent) error {
	if err := p.client.Publish(ctx, p.channel, ev); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return nil }

// MessageProducer is satisfied by *kafka.Producer.
type MessageProducer interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher writes update events to a topic. Events for the same
// address set share a key and therefore a partition.
type KafkaPublisher struct {
	producer MessageProducer
}

func NewKafkaPublisher(producer MessageProducer) repository.UpdatePublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.UpdateEvent) error {
	if err := p.producer.Publish(ctx, EventKey(ev), ev); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// EventKey is the partition key of an event.
func EventKey(ev models.UpdateEvent) []byte {
	return []byte(pkgcache.HashKey(strings.Join(util.NormalizedSet(ev.TokenAddresses), ",")))
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.UpdateEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }
