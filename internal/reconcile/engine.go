// Package reconcile keeps the cached aggregate pair and the local ledger
// consistent with the remote store across add, edit and delete.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/park285/h2h-ledger/internal/delta"
	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/remote"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
	"go.uber.org/zap"
)

type Options struct {
	PlayerOne string
	PlayerTwo string

	// OfflineFallback applies operations locally while the remote store is unreachable.
	OfflineFallback bool
	// StrictIntegrity refuses offline operations that would clamp a counter.
	StrictIntegrity bool

	Logger *zap.Logger
}

// Outcome describes a committed operation.
type Outcome struct {
	Entry   match.Entry
	Pair    stats.Pair
	Mode    statestore.Mode
	Clamped []*delta.IntegrityError
}

type Engine struct {
	ledger *ledger.Store
	state  *statestore.Store
	remote Remote
	outbox *Outbox

	online  *onlineApplier
	offline *offlineApplier

	locks *lockTable
	// mu orders every operation that touches the aggregates, so a response can
	// never overwrite the cache with an older pair.
	mu        sync.Mutex
	connected atomic.Bool

	opts   Options
	logger *zap.Logger
}

func New(l *ledger.Store, st *statestore.Store, r Remote, ob *Outbox, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ob == nil {
		ob = NewOutbox(ledger.NewMemoryKV())
	}
	e := &Engine{
		ledger:  l,
		state:   st,
		remote:  r,
		outbox:  ob,
		online:  &onlineApplier{remote: r, logger: logger},
		offline: &offlineApplier{outbox: ob, strict: opts.StrictIntegrity, logger: logger},
		locks:   newLockTable(),
		opts:    opts,
		logger:  logger,
	}
	e.connected.Store(true)
	return e
}

func (e *Engine) State() *statestore.Store { return e.state }

func (e *Engine) Ledger() *ledger.Store { return e.ledger }

// Init loads the ledger and the authoritative aggregates. When the remote store
// cannot be read the cache starts from the zero baseline and is flagged stale.
func (e *Engine) Init(ctx context.Context) ([]match.Entry, error) {
	entries, err := e.ledger.Load(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.syncLocked(ctx); err != nil {
		e.logger.Warn("init_baseline", zap.Error(err))
		e.state.Replace(stats.Baseline(e.opts.PlayerOne, e.opts.PlayerTwo))
		e.state.MarkStale()
	}
	e.logger.Info("engine_ready",
		zap.Int("entries", len(entries)),
		zap.Bool("connected", e.connected.Load()),
		zap.String("mode", string(e.state.Snapshot().Mode)),
	)
	return entries, nil
}

// Add submits a new entry and puts it at the head of the ledger.
func (e *Engine) Add(ctx context.Context, entry match.Entry) (Outcome, error) {
	if !entry.Result.Valid() {
		return Outcome{}, ErrInvalidResult
	}
	entry = match.Sanitize(entry)
	if entry.ID == "" {
		entry.ID = ledger.NewID()
	}
	if err := e.locks.acquire(entry.ID); err != nil {
		return Outcome{}, err
	}
	defer e.locks.release(entry.ID)
	e.state.Begin()
	defer e.state.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	ap, err := e.applier(ctx)
	if err != nil {
		return Outcome{}, err
	}
	res, err := ap.Apply(ctx, e.state.Snapshot().Pair, entry)
	if err != nil {
		e.failed("ledger_add", ap, entry.ID, err)
		return Outcome{}, err
	}
	e.state.Replace(res.Pair)
	if _, err := e.ledger.InsertFront(ctx, entry); err != nil {
		e.logger.Error("ledger_persist_failed", zap.String("op", "add"), zap.String("entry_id", entry.ID), zap.Error(err))
		e.undoAdd(ctx, ap, res.Pair, entry)
		return Outcome{}, err
	}
	e.logger.Info("ledger_add", zap.String("entry_id", entry.ID), zap.String("mode", string(ap.Mode())))
	return Outcome{Entry: entry, Pair: res.Pair, Mode: ap.Mode(), Clamped: res.Clamped}, nil
}

// Edit replaces the entry at index: the old entry is reversed first, then the
// new one submitted. If the submit fails the old entry is re-submitted and an
// *EditError returned; the ledger keeps the old entry either way.
func (e *Engine) Edit(ctx context.Context, index int, entry match.Entry) (Outcome, error) {
	if !entry.Result.Valid() {
		return Outcome{}, ErrInvalidResult
	}
	at, err := e.ledger.At(ctx, index)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.locks.acquire(at.ID); err != nil {
		return Outcome{}, err
	}
	defer e.locks.release(at.ID)
	e.state.Begin()
	defer e.state.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.current(ctx, at.ID)
	if err != nil {
		return Outcome{}, err
	}
	entry = match.Sanitize(entry).WithID(old.ID)
	ap, err := e.applier(ctx)
	if err != nil {
		return Outcome{}, err
	}

	reversed, err := ap.Reverse(ctx, e.state.Snapshot().Pair, old)
	if err != nil {
		e.failed("edit_reverse", ap, old.ID, err)
		return Outcome{}, err
	}

	res, err := ap.Apply(ctx, reversed.Pair, entry)
	if err != nil {
		e.failed("edit_submit", ap, old.ID, err)
		return Outcome{}, e.compensate(ctx, ap, old, reversed, err)
	}

	e.state.Replace(res.Pair)
	if err := e.ledger.ReplaceByID(ctx, old.ID, entry); err != nil {
		e.logger.Error("ledger_persist_failed", zap.String("op", "edit"), zap.String("entry_id", old.ID), zap.Error(err))
		return Outcome{}, err
	}
	e.logger.Info("ledger_edit", zap.String("entry_id", old.ID), zap.String("mode", string(ap.Mode())))
	clamped := append(reversed.Clamped, res.Clamped...)
	return Outcome{Entry: entry, Pair: res.Pair, Mode: ap.Mode(), Clamped: clamped}, nil
}

// compensate re-submits old after its replacement was rejected.
func (e *Engine) compensate(ctx context.Context, ap Applier, old match.Entry, reversed Applied, cause error) error {
	restored, cerr := ap.Apply(ctx, reversed.Pair, old)
	if cerr != nil {
		e.state.Replace(reversed.Pair)
		e.state.MarkStale()
		e.logger.Error("edit_compensate_failed", zap.String("entry_id", old.ID), zap.Error(cerr))
		return &EditError{Cause: cause, CompensationErr: cerr}
	}
	e.state.Replace(restored.Pair)
	e.logger.Warn("edit_compensated", zap.String("entry_id", old.ID))
	return &EditError{Cause: cause, Compensated: true}
}

// Delete reverses the entry at index and drops it from the ledger.
func (e *Engine) Delete(ctx context.Context, index int) (Outcome, error) {
	at, err := e.ledger.At(ctx, index)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.locks.acquire(at.ID); err != nil {
		return Outcome{}, err
	}
	defer e.locks.release(at.ID)
	e.state.Begin()
	defer e.state.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.current(ctx, at.ID)
	if err != nil {
		return Outcome{}, err
	}
	ap, err := e.applier(ctx)
	if err != nil {
		return Outcome{}, err
	}
	res, err := ap.Reverse(ctx, e.state.Snapshot().Pair, old)
	if err != nil {
		e.failed("ledger_delete", ap, old.ID, err)
		return Outcome{}, err
	}
	e.state.Replace(res.Pair)
	if err := e.ledger.RemoveByID(ctx, old.ID); err != nil {
		e.logger.Error("ledger_persist_failed", zap.String("op", "delete"), zap.String("entry_id", old.ID), zap.Error(err))
		return Outcome{}, err
	}
	e.logger.Info("ledger_delete", zap.String("entry_id", old.ID), zap.String("mode", string(ap.Mode())))
	return Outcome{Entry: old, Pair: res.Pair, Mode: ap.Mode(), Clamped: res.Clamped}, nil
}

// current re-reads the entry once its lock is held. An entry removed in the
// meantime reports ErrIndexOutOfRange so nothing is reversed twice.
func (e *Engine) current(ctx context.Context, id string) (match.Entry, error) {
	entry, err := e.ledger.ByID(ctx, id)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		e.logger.Info("entry_moved", zap.String("entry_id", id))
		return match.Entry{}, fmt.Errorf("%w: entry %s no longer in the ledger", ErrIndexOutOfRange, id)
	}
	return entry, err
}

// undoAdd takes back an accepted entry that could not be recorded locally.
// If that fails too the cache is flagged stale until the next sync.
func (e *Engine) undoAdd(ctx context.Context, ap Applier, from stats.Pair, entry match.Entry) {
	undone, err := ap.Reverse(ctx, from, entry)
	if err != nil {
		e.state.MarkStale()
		e.logger.Error("add_rollback_failed", zap.String("entry_id", entry.ID), zap.Error(err))
		return
	}
	e.state.Replace(undone.Pair)
	e.logger.Warn("add_rolled_back", zap.String("entry_id", entry.ID))
}

// Busy reports whether the entry at index has an operation in flight.
func (e *Engine) Busy(ctx context.Context, index int) (bool, error) {
	entry, err := e.ledger.At(ctx, index)
	if err != nil {
		return false, err
	}
	return e.locks.busy(entry.ID), nil
}

// applier picks the strategy for the next operation. Offline is used while
// disconnected, and also while queued operations wait so their order is kept.
func (e *Engine) applier(ctx context.Context) (Applier, error) {
	var ap Applier = e.online
	if e.opts.OfflineFallback {
		n, queued := e.queued(ctx)
		if n < 0 {
			return nil, errors.New("outbox unavailable")
		}
		if !e.connected.Load() || queued {
			ap = e.offline
		}
	}
	e.state.SetMode(ap.Mode())
	return ap, nil
}

// queued returns the outbox length, or -1 when it cannot be read.
func (e *Engine) queued(ctx context.Context) (int, bool) {
	n, err := e.outbox.Len(ctx)
	if err != nil {
		e.logger.Error("outbox_read_failed", zap.Error(err))
		return -1, false
	}
	return n, n > 0
}

func (e *Engine) failed(event string, ap Applier, id string, err error) {
	if errors.Is(err, remote.ErrTransport) {
		e.connected.Store(false)
	}
	e.logger.Warn(event+"_failed",
		zap.String("entry_id", id),
		zap.String("mode", string(ap.Mode())),
		zap.Error(err),
	)
}
