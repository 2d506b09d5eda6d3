package reconcile

import "sync"

// lockTable admits at most one operation per ledger entry ID.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

func (l *lockTable) acquire(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[id]; busy {
		return ErrEntryBusy
	}
	l.held[id] = struct{}{}
	return nil
}

func (l *lockTable) release(id string) {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
}

func (l *lockTable) busy(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}
