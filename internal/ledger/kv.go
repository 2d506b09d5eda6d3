package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by KV.Get for a key that was never written.
var ErrNotFound = errors.New("key not found")

// UpdateFunc receives the current value (nil when absent) and returns the new one.
type UpdateFunc func(cur []byte) ([]byte, error)

// KV is the string-keyed persistence layer behind the ledger and photos.
// Update is a read-modify-write of one key that no other writer can interleave with.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// OpenKV picks a backend from the URL scheme: mem://, file://<dir>, redis://, rediss://, postgres://.
func OpenKV(ctx context.Context, raw string) (KV, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("ledger url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ledger url: %w", err)
	}
	switch u.Scheme {
	case "mem", "memory":
		return NewMemoryKV(), nil
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			dir = "."
		}
		return NewFileKV(dir)
	case "redis", "rediss":
		return NewRedisKV(ctx, raw)
	case "postgres", "postgresql":
		return NewPostgresKV(ctx, raw)
	default:
		return nil, fmt.Errorf("unsupported ledger scheme: %s", u.Scheme)
	}
}
