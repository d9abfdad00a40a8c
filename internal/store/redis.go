package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
)

// presenceChannelPrefix namespaces presence relay channels; the room name follows.
const presenceChannelPrefix = "workconnect:presence:"

// RedisStore handles Redis operations for rate limiting and the presence relay.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()
	return s.client.Ping(ctx).Err()
}

// presenceChannel returns the relay channel for a room.
func presenceChannel(room string) string {
	return presenceChannelPrefix + room
}

// Publish relays a room payload to every subscribed instance. It returns the
// number of instances that received it.
func (s *RedisStore) Publish(ctx context.Context, room string, payload []byte) (int64, error) {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	n, err := s.client.Publish(ctx, presenceChannel(room), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", room, err)
	}
	return n, nil
}

// RelayMessage is one payload received from the presence relay.
type RelayMessage struct {
	Room    string
	Payload []byte
}

// Subscribe listens on every presence channel until ctx is cancelled.
// The returned channel is closed when the subscription ends.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan RelayMessage, error) {
	sub := s.client.PSubscribe(ctx, presenceChannelPrefix+"*")
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}

	out := make(chan RelayMessage, 256)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- RelayMessage{
					Room:    strings.TrimPrefix(msg.Channel, presenceChannelPrefix),
					Payload: []byte(msg.Payload),
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
