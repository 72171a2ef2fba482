package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vira:session:"

// Redis is a Store backed by a Redis list per session. Appends use RPUSH,
// which is atomic per command, and every write refreshes the session TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TTL evicts idle sessions. Zero keeps sessions until explicit eviction.
	TTL time.Duration `mapstructure:"ttl"`
}

func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Redis{client: client, ttl: cfg.TTL}
}

// NewRedisWithClient wraps an existing client. Used by tests with miniredis.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

func key(sessionID string) string { return keyPrefix + sessionID }

func (r *Redis) History(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := r.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", sessionID, err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session %q message: %w", sessionID, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *Redis) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	values, err := encode(msgs)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key(sessionID), values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key(sessionID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to session %q: %w", sessionID, err)
	}
	return nil
}

func (r *Redis) Replace(ctx context.Context, sessionID string, msgs []Message) error {
	values, err := encode(msgs)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key(sessionID))
	if len(values) > 0 {
		pipe.RPush(ctx, key(sessionID), values...)
		if r.ttl > 0 {
			pipe.Expire(ctx, key(sessionID), r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace session %q: %w", sessionID, err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("evict session %q: %w", sessionID, err)
	}
	return nil
}

func encode(msgs []Message) ([]any, error) {
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode session message: %w", err)
		}
		values = append(values, string(data))
	}
	return values, nil
}
