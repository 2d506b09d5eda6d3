// Package statestore owns the current aggregate pair and notifies subscribers
// whenever it is replaced.
package statestore

import (
	"sync"

	"github.com/park285/h2h-ledger/internal/stats"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Snapshot is an immutable view of the store.
type Snapshot struct {
	Pair    stats.Pair
	Version uint64
	Pending bool
	Stale   bool
	Mode    Mode
}

type Listener func(Snapshot)

type listenerEntry struct {
	id int
	fn Listener
}

type Store struct {
	mu       sync.RWMutex
	pair     stats.Pair
	version  uint64
	inflight int
	stale    bool
	mode     Mode

	listeners []listenerEntry
	nextID    int
	lm        sync.RWMutex
}

func New(initial stats.Pair) *Store {
	return &Store{pair: initial, mode: ModeOnline}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Pair:    s.pair,
		Version: s.version,
		Pending: s.inflight > 0,
		Stale:   s.stale,
		Mode:    s.mode,
	}
}

// Replace swaps the pair wholesale and clears the stale flag.
func (s *Store) Replace(p stats.Pair) Snapshot {
	return s.update(func() {
		s.pair = p
		s.stale = false
	})
}

// MarkStale flags the cached pair as possibly out of sync with the remote store.
func (s *Store) MarkStale() Snapshot {
	return s.update(func() { s.stale = true })
}

func (s *Store) SetMode(m Mode) Snapshot {
	s.mu.RLock()
	same := s.mode == m
	s.mu.RUnlock()
	if same {
		return s.Snapshot()
	}
	return s.update(func() { s.mode = m })
}

// Begin marks one more operation in flight. Pair it with End.
func (s *Store) Begin() Snapshot {
	return s.update(func() { s.inflight++ })
}

func (s *Store) End() Snapshot {
	return s.update(func() {
		if s.inflight > 0 {
			s.inflight--
		}
	})
}

func (s *Store) update(fn func()) Snapshot {
	s.mu.Lock()
	fn()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Subscribe registers fn for every future snapshot and returns its id.
func (s *Store) Subscribe(fn Listener) int {
	s.lm.Lock()
	defer s.lm.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextID, fn: fn})
	return s.nextID
}

func (s *Store) Unsubscribe(id int) {
	s.lm.Lock()
	defer s.lm.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(snap Snapshot) {
	s.lm.RLock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.lm.RUnlock()
	for _, l := range listeners {
		if l.fn != nil {
			l.fn(snap)
		}
	}
}
