package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tOgg1/spark/internal/logging"
)

const defaultRedisPrefix = "spark"

// RedisBroker implements Broker over Redis pub/sub so several processes
// share one realtime stream.
type RedisBroker struct {
	client *redis.Client
	prefix string
	buffer int
	logger zerolog.Logger
}

// RedisOption configures a RedisBroker.
type RedisOption func(*RedisBroker)

// WithRedisPrefix sets the channel name prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(b *RedisBroker) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			b.prefix = trimmed
		}
	}
}

// WithRedisBuffer sets the per-subscription channel buffer.
func WithRedisBuffer(size int) RedisOption {
	return func(b *RedisBroker) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// NewRedisBroker connects to redisURL and verifies the connection.
func NewRedisBroker(ctx context.Context, redisURL string, opts ...RedisOption) (*RedisBroker, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisBrokerFromClient(client, opts...), nil
}

// NewRedisBrokerFromClient wraps an existing client.
func NewRedisBrokerFromClient(client *redis.Client, opts ...RedisOption) *RedisBroker {
	b := &RedisBroker{
		client: client,
		prefix: defaultRedisPrefix,
		buffer: defaultSubscribeBuffer,
		logger: logging.Component("redis-broker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Channel returns the pub/sub channel for a table within a conversation.
func (b *RedisBroker) Channel(table Table, conversationID string) string {
	return fmt.Sprintf("%s:conversation:%s:%s", b.prefix, conversationID, table)
}

// pattern returns the channel pattern matching a filter with wildcards.
func (b *RedisBroker) pattern(filter Filter) string {
	conversation := filter.ConversationID
	if conversation == "" {
		conversation = "*"
	}
	table := string(filter.Table)
	if table == "" {
		table = "*"
	}
	return fmt.Sprintf("%s:conversation:%s:%s", b.prefix, conversation, table)
}

// Publish sends a change on its conversation/table channel.
func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	if change.Table == "" || change.ConversationID == "" {
		return ErrInvalidChange
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.client.Publish(ctx, b.Channel(change.Table, change.ConversationID), data).Err()
}

// Subscribe listens on the channel matching filter. A filter without a
// conversation or table subscribes by pattern.
func (b *RedisBroker) Subscribe(ctx context.Context, filter Filter) (<-chan Change, func(), error) {
	var pubsub *redis.PubSub
	if filter.ConversationID == "" || filter.Table == "" {
		pubsub = b.client.PSubscribe(ctx, b.pattern(filter))
	} else {
		pubsub = b.client.Subscribe(ctx, b.Channel(filter.Table, filter.ConversationID))
	}

	// Wait for the subscription confirmation so failures surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.pattern(filter), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Change, b.buffer)
	go b.forward(subCtx, pubsub, filter, out)

	stop := func() {
		cancel()
		_ = pubsub.Close()
	}
	return out, stop, nil
}

func (b *RedisBroker) forward(ctx context.Context, pubsub *redis.PubSub, filter Filter, out chan<- Change) {
	defer close(out)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			change, err := decodeChange(msg.Payload)
			if err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping undecodable change")
				continue
			}
			if !filter.Matches(change) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- change:
			}
		}
	}
}

func decodeChange(payload string) (Change, error) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if change.Table == "" {
		return Change{}, ErrInvalidChange
	}
	return change, nil
}
