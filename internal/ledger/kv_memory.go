package ledger

import (
	"context"
	"sync"
)

// memoryKV keeps values in process; used by tests and the mem:// backend.
type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryKV() KV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryKV) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), val...)
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur []byte
	if v, ok := m.data[key]; ok {
		cur = append([]byte(nil), v...)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

func (m *memoryKV) Close() error { return nil }
