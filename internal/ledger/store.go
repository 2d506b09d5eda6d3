package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/park285/h2h-ledger/internal/match"
	"go.uber.org/zap"
)

// DefaultKey is where the ordered ledger is persisted.
const DefaultKey = "efb_history"

var (
	ErrIndexOutOfRange = errors.New("ledger index out of range")
	ErrEntryNotFound   = errors.New("ledger entry not found")
)

// Store is the newest-first sequence of ledger entries the remote store has accepted.
// Every mutation rewrites the whole sequence.
type Store struct {
	kv     KV
	key    string
	logger *zap.Logger
}

func NewStore(kv KV, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, key: key, logger: logger}
}

// Load returns the persisted sequence. A missing or unreadable payload yields an
// empty ledger; only I/O failures of the backend are returned. Entries saved
// without an ID get one here, and it is written back so it stays stable.
func (s *Store) Load(ctx context.Context) ([]match.Entry, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []match.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	entries, ok := s.decode(raw)
	if !ok || !missingIDs(entries) {
		return entries, nil
	}

	var stamped []match.Entry
	err = s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		stamped = list
		return list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("assign ledger ids: %w", err)
	}
	s.logger.Info("ledger_ids_assigned", zap.String("key", s.key), zap.Int("entries", len(stamped)))
	return stamped, nil
}

// decode parses raw; ok is false when the payload was unreadable.
func (s *Store) decode(raw []byte) ([]match.Entry, bool) {
	if len(raw) == 0 {
		return []match.Entry{}, true
	}
	var entries []match.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("ledger_corrupt_reset", zap.String("key", s.key), zap.Int("bytes", len(raw)), zap.Error(err))
		return []match.Entry{}, false
	}
	if entries == nil {
		entries = []match.Entry{}
	}
	return entries, true
}

func missingIDs(list []match.Entry) bool {
	for i := range list {
		if list[i].ID == "" {
			return true
		}
	}
	return false
}

// Save replaces the persisted sequence.
func (s *Store) Save(ctx context.Context, entries []match.Entry) error {
	raw, err := encode(entries)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func encode(entries []match.Entry) ([]byte, error) {
	if entries == nil {
		entries = []match.Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return raw, nil
}

// mutate is the single read-modify-write path every mutation goes through.
// Entries without an ID are stamped inside the same update, so concurrent
// callers all see the same IDs.
func (s *Store) mutate(ctx context.Context, fn func([]match.Entry) ([]match.Entry, error)) error {
	return s.kv.Update(ctx, s.key, func(cur []byte) ([]byte, error) {
		list, _ := s.decode(cur)
		for i := range list {
			if list[i].ID == "" {
				list[i].ID = NewID()
			}
		}
		next, err := fn(list)
		if err != nil {
			return nil, err
		}
		return encode(next)
	})
}

// At returns the entry at index.
func (s *Store) At(ctx context.Context, index int) (match.Entry, error) {
	entries, err := s.Load(ctx)
	if err != nil {
		return match.Entry{}, err
	}
	if index < 0 || index >= len(entries) {
		return match.Entry{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(entries))
	}
	return entries[index], nil
}

// InsertFront puts e at the head; an entry without ID gets one.
func (s *Store) InsertFront(ctx context.Context, e match.Entry) (match.Entry, error) {
	if e.ID == "" {
		e.ID = NewID()
	}
	err := s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		return append([]match.Entry{e}, list...), nil
	})
	return e, err
}

func (s *Store) ReplaceAt(ctx context.Context, index int, e match.Entry) error {
	return s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		if index < 0 || index >= len(list) {
			return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(list))
		}
		if e.ID == "" {
			e.ID = list[index].ID
		}
		list[index] = e
		return list, nil
	})
}

func (s *Store) RemoveAt(ctx context.Context, index int) error {
	return s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		if index < 0 || index >= len(list) {
			return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(list))
		}
		return append(list[:index], list[index+1:]...), nil
	})
}

// ReplaceByID swaps the entry carrying id wherever it currently sits.
func (s *Store) ReplaceByID(ctx context.Context, id string, e match.Entry) error {
	e.ID = id
	return s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		list[i] = e
		return list, nil
	})
}

// RemoveByID drops the entry carrying id wherever it currently sits.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	return s.mutate(ctx, func(list []match.Entry) ([]match.Entry, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return append(list[:i], list[i+1:]...), nil
	})
}

// ByID returns the current content of the entry carrying id.
func (s *Store) ByID(ctx context.Context, id string) (match.Entry, error) {
	list, err := s.Load(ctx)
	if err != nil {
		return match.Entry{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return match.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return list[i], nil
}

func indexOf(list []match.Entry, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// NewID returns a fresh ledger entry identifier.
func NewID() string { return uuid.NewString() }
