package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis instance, for server-side hosts that
// embed the pipeline and already run Redis. Lists map onto native Redis
// lists so the unsent-events key stays inspectable with standard tooling.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store. prefix namespaces all keys.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) GetList(ctx context.Context, key string) ([]string, bool, error) {
	values, err := r.client.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get list %s: %w", key, err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	return values, true, nil
}

func (r *Redis) SetList(ctx context.Context, key string, values []string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(key))
	if len(values) > 0 {
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		pipe.RPush(ctx, r.key(key), args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set list %s: %w", key, err)
	}
	return nil
}
