package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const connectTimeout = 5 * time.Second

// Publisher is the write side of the bus, accepted by the platform listeners.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Bus is a channel-keyed publish/subscribe dispatch backed by Redis. It is
// constructed once at startup and injected into each component; delivery is
// best-effort, at-most-once.
type Bus struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New connects to the broker at addr and verifies the connection. A broker
// that cannot be reached is a startup error, not something to log and limp
// past.
func New(addr string, logger zerolog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to bus at %s: %w", addr, err)
	}

	return &Bus{
		rdb:    rdb,
		logger: logger.With().Str("component", "bus").Logger(),
	}, nil
}

// ChatTopic returns the bus topic canonical messages for a channel are
// published on.
func ChatTopic(channel string) string {
	return channel + "_chat"
}

// ProcessedTopic returns the bus topic cleaned records are forwarded on.
func ProcessedTopic(channel string) string {
	return channel + "_processed"
}

// Publish serializes v as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// Subscription is a single-topic bus subscription. Close releases it.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription on topic. The caller owns the subscription
// and must close it on every exit path.
func (b *Bus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, topic)

	// Force the SUBSCRIBE round-trip so a dead broker surfaces here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	b.logger.Info().Str("topic", topic).Msg("subscribed")

	return &Subscription{pubsub: pubsub}, nil
}

// Messages returns the delivery channel. Payloads arrive in publish order for
// a given topic; the channel closes when the subscription does.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Close releases the broker connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
