package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/h2h-ledger/internal/remote"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
	"go.uber.org/zap"
)

// SyncReport summarizes one flush of the outbox.
type SyncReport struct {
	Flushed   int
	Remaining int
	Diverged  bool
}

// SetConnected records the connectivity state reported by the transport.
func (e *Engine) SetConnected(connected bool) {
	prev := e.connected.Swap(connected)
	if prev == connected {
		return
	}
	e.logger.Info("connectivity_changed", zap.Bool("connected", connected))
	if !connected && e.opts.OfflineFallback {
		e.state.SetMode(statestore.ModeOffline)
	}
}

func (e *Engine) Connected() bool { return e.connected.Load() }

// Sync flushes queued offline operations in order, stopping at the first
// failure, then replaces the cache with the remote store's aggregates.
func (e *Engine) Sync(ctx context.Context) (SyncReport, error) {
	e.state.Begin()
	defer e.state.End()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncLocked(ctx)
}

// Refresh re-fetches the aggregates; queued offline operations are flushed first.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.Sync(ctx)
	return err
}

func (e *Engine) syncLocked(ctx context.Context) (SyncReport, error) {
	ops, err := e.outbox.List(ctx)
	if err != nil {
		return SyncReport{Remaining: -1}, err
	}
	before := e.state.Snapshot().Pair
	report := SyncReport{Remaining: len(ops)}

	for _, op := range ops {
		var ferr error
		switch op.Kind {
		case OpReverse:
			_, ferr = e.online.Reverse(ctx, stats.Pair{}, op.Entry)
		default:
			_, ferr = e.online.Apply(ctx, stats.Pair{}, op.Entry)
		}
		if ferr != nil {
			e.failed("sync_flush", e.online, op.Entry.ID, ferr)
			return report, fmt.Errorf("flush %s %s: %w", op.Kind, op.ID, ferr)
		}
		if err := e.outbox.Drop(ctx, op.ID); err != nil {
			return report, err
		}
		report.Flushed++
		report.Remaining--
	}

	list, err := e.remote.Players(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrTransport) {
			e.connected.Store(false)
		}
		return report, fmt.Errorf("fetch players: %w", err)
	}
	pair := stats.FromList(list, e.opts.PlayerOne, e.opts.PlayerTwo)
	if err := pair.Validate(); err != nil {
		e.logger.Warn("remote_invariant_violation", zap.String("op", "players"), zap.Error(err))
	}
	if report.Flushed > 0 && !pair.Equal(before) {
		report.Diverged = true
		e.logger.Warn("sync_divergence",
			zap.Int("flushed", report.Flushed),
			zap.Any("local", before),
			zap.Any("remote", pair),
		)
	}
	e.connected.Store(true)
	e.state.Replace(pair)
	e.state.SetMode(statestore.ModeOnline)
	if report.Flushed > 0 {
		e.logger.Info("sync_done", zap.Int("flushed", report.Flushed), zap.Bool("diverged", report.Diverged))
	}
	return report, nil
}

// Observe takes a pushed players listing. It is ignored while offline
// operations are queued, since those are not reflected remotely yet.
func (e *Engine) Observe(ctx context.Context, list []stats.Aggregate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, queued := e.queued(ctx); queued || n < 0 {
		return
	}
	e.state.Replace(stats.FromList(list, e.opts.PlayerOne, e.opts.PlayerTwo))
}
