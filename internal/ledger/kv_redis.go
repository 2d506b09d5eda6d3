package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "h2h:"
	redisMaxAttempts = 8
)

// ErrConflict means a redis update kept losing its WATCH race.
var ErrConflict = errors.New("concurrent ledger update")

type redisKV struct {
	rdb *redis.Client
}

func NewRedisKV(ctx context.Context, redisURL string) (KV, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisKV{rdb: rdb}, nil
}

// NewRedisKVFromClient wraps an existing client (tests, shared pools).
func NewRedisKVFromClient(rdb *redis.Client) KV {
	return &redisKV{rdb: rdb}
}

func (r *redisKV) key(k string) string { return redisKeyPrefix + strings.TrimSpace(k) }

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return raw, err
}

func (r *redisKV) Set(ctx context.Context, key string, val []byte) error {
	return r.rdb.Set(ctx, r.key(key), val, 0).Err()
}

// Update runs fn under WATCH so a concurrent writer aborts the transaction; it is retried.
func (r *redisKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := r.key(key)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			cur = nil
		} else if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < redisMaxAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *redisKV) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
