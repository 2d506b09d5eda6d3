package reconcile

import (
	"context"
	"fmt"

	"github.com/park285/h2h-ledger/internal/delta"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Remote is the part of the remote store client the engine depends on.
type Remote interface {
	Players(ctx context.Context) ([]stats.Aggregate, error)
	SubmitMatch(ctx context.Context, e match.Entry) (stats.Pair, error)
	ReverseMatch(ctx context.Context, e match.Entry) (stats.Pair, error)
}

// Applied is the pair that results from one apply or reverse. Clamped lists
// the counters that would have gone negative; only offline reversals fill it.
type Applied struct {
	Pair    stats.Pair
	Clamped []*delta.IntegrityError
}

// Applier applies or reverses one entry and returns the resulting pair.
// from is the pair the step starts from; steps of one operation chain the
// previous step's result. The online applier ignores it because the remote
// store holds its own counters.
type Applier interface {
	Mode() statestore.Mode
	Apply(ctx context.Context, from stats.Pair, e match.Entry) (Applied, error)
	Reverse(ctx context.Context, from stats.Pair, e match.Entry) (Applied, error)
}

// onlineApplier delegates to the remote store, which owns the arithmetic.
type onlineApplier struct {
	remote Remote
	logger *zap.Logger
}

func (a *onlineApplier) Mode() statestore.Mode { return statestore.ModeOnline }

func (a *onlineApplier) Apply(ctx context.Context, _ stats.Pair, e match.Entry) (Applied, error) {
	pair, err := a.remote.SubmitMatch(ctx, e)
	if err != nil {
		return Applied{}, fmt.Errorf("submit match: %w", err)
	}
	a.check("submit", pair)
	return Applied{Pair: pair}, nil
}

func (a *onlineApplier) Reverse(ctx context.Context, _ stats.Pair, e match.Entry) (Applied, error) {
	pair, err := a.remote.ReverseMatch(ctx, e)
	if err != nil {
		return Applied{}, fmt.Errorf("reverse match: %w", err)
	}
	a.check("reverse", pair)
	return Applied{Pair: pair}, nil
}

func (a *onlineApplier) check(op string, p stats.Pair) {
	if err := p.Validate(); err != nil {
		a.logger.Warn("remote_invariant_violation", zap.String("op", op), zap.Error(err))
	}
}

// offlineApplier computes the pair locally and queues the operation for the
// next sync.
type offlineApplier struct {
	outbox *Outbox
	strict bool
	logger *zap.Logger
}

func (a *offlineApplier) Mode() statestore.Mode { return statestore.ModeOffline }

func (a *offlineApplier) Apply(ctx context.Context, from stats.Pair, e match.Entry) (Applied, error) {
	return a.run(ctx, OpApply, from, e, delta.ApplyEntry)
}

func (a *offlineApplier) Reverse(ctx context.Context, from stats.Pair, e match.Entry) (Applied, error) {
	return a.run(ctx, OpReverse, from, e, delta.ReverseEntry)
}

func (a *offlineApplier) run(ctx context.Context, kind OpKind, from stats.Pair, e match.Entry, fn func(stats.Pair, match.Entry) (stats.Pair, []*delta.IntegrityError)) (Applied, error) {
	next, clamped := fn(from, e)
	if len(clamped) > 0 {
		var err error
		for _, ie := range clamped {
			err = multierr.Append(err, ie)
			a.logger.Warn("offline_clamped", zap.String("kind", string(kind)), zap.String("entry_id", e.ID), zap.Error(ie))
		}
		if a.strict {
			return Applied{}, fmt.Errorf("%w: %w", ErrIntegrity, err)
		}
	}
	op, err := a.outbox.Push(ctx, kind, e)
	if err != nil {
		return Applied{}, err
	}
	a.logger.Info("offline_queued", zap.String("op_id", op.ID), zap.String("kind", string(kind)), zap.String("entry_id", e.ID))
	return Applied{Pair: next, Clamped: clamped}, nil
}
