package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCheckpointer keeps the checkpoint under a single key so several
// hosts can hand a symbol over between them.
type RedisCheckpointer struct {
	cli redis.Cmdable
	key string
	ttl time.Duration
}

func NewRedisCheckpointer(cli redis.Cmdable, key string, ttl time.Duration) *RedisCheckpointer {
	return &RedisCheckpointer{cli: cli, key: key, ttl: ttl}
}

func (r *RedisCheckpointer) Save(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	if err := r.cli.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisCheckpointer) Load(ctx context.Context) (Checkpoint, error) {
	data, err := r.cli.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", r.key, err)
	}
	return cp, nil
}
