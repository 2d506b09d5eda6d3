package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fileKV stores one file per key under root. Writes go through a temp file and rename.
type fileKV struct {
	root string
	mu   sync.Mutex
}

func NewFileKV(root string) (KV, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &fileKV{root: root}, nil
}

func (f *fileKV) path(key string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(key))
	return filepath.Join(f.root, name+".json")
}

func (f *fileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *fileKV) read(key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *fileKV) Set(_ context.Context, key string, val []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(key, val)
}

func (f *fileKV) write(key string, val []byte) error {
	path := f.path(key)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(val); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *fileKV) Update(_ context.Context, key string, fn UpdateFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.read(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return f.write(key, next)
}

func (f *fileKV) Close() error { return nil }
