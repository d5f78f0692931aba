package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Limiter shared by every instance pointing at the same server.
type Redis struct {
	rdb    *redis.Client
	cfg    Config
	prefix string
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedis(rdb *redis.Client, prefix string, cfg Config) *Redis {
	if prefix == "" {
		prefix = "login"
	}
	return &Redis{rdb: rdb, cfg: cfg.withDefaults(), prefix: prefix}
}

func (r *Redis) attemptsKey(id string) string { return r.prefix + ":attempts:" + id }
func (r *Redis) blockKey(id string) string    { return r.prefix + ":block:" + id }

func (r *Redis) Check(ctx context.Context, id string) (Result, error) {
	ttl, err := r.rdb.PTTL(ctx, r.blockKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("read block: %w", err)
	}
	if ttl > 0 {
		return Result{RetryAfter: ttl}, nil
	}

	n, err := r.rdb.Incr(ctx, r.attemptsKey(id)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("count attempt: %w", err)
	}
	if n == 1 {
		if err := r.rdb.PExpire(ctx, r.attemptsKey(id), r.cfg.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set window: %w", err)
		}
	}
	if n > int64(r.cfg.MaxAttempts) {
		_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.blockKey(id), 1, r.cfg.Block)
			p.Del(ctx, r.attemptsKey(id))
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("set block: %w", err)
		}
		return Result{RetryAfter: r.cfg.Block}, nil
	}
	return Result{Allowed: true, Remaining: r.cfg.MaxAttempts - int(n)}, nil
}

func (r *Redis) Clear(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.attemptsKey(id), r.blockKey(id)).Err()
}
