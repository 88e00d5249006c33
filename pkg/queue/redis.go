package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions contains Redis-specific pending store configuration.
type RedisOptions struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password,omitempty" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// redisStore keeps the pending sequence in a Redis list so multiple
// processes can share one delivery queue.
type redisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed pending store and verifies the
// connection before returning.
func NewRedisStore(opts *RedisOptions) (PendingStore, error) {
	if opts == nil {
		return nil, errors.New("redis options cannot be nil")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "deliverycore:queue:"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{
		client: client,
		key:    opts.KeyPrefix + "pending",
	}, nil
}

// Append admits a message at the tail of the Redis list.
func (s *redisStore) Append(ctx context.Context, msg *QueuedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.client.RPush(ctx, s.key, data).Err()
}

// DrainBatch removes and returns up to max messages from the head.
func (s *redisStore) DrainBatch(ctx context.Context, max int) ([]*QueuedMessage, error) {
	values, err := s.client.LPopCount(ctx, s.key, max).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	batch := make([]*QueuedMessage, 0, len(values))
	for _, v := range values {
		var msg QueuedMessage
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return batch, fmt.Errorf("failed to unmarshal queued message: %w", err)
		}
		batch = append(batch, &msg)
	}
	return batch, nil
}

// Len returns the number of pending messages.
func (s *redisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	return int(n), err
}

// Clear drops all pending messages.
func (s *redisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Close closes the Redis connection.
func (s *redisStore) Close() error {
	return s.client.Close()
}
