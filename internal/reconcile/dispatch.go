package reconcile

import (
	"context"
	"fmt"

	"github.com/park285/h2h-ledger/internal/match"
)

type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionEdit   ActionKind = "edit"
	ActionDelete ActionKind = "delete"
)

// Action is one user-initiated mutation. Index is ignored for ActionAdd and
// Entry for ActionDelete.
type Action struct {
	Kind  ActionKind
	Index int
	Entry match.Entry
}

type Result struct {
	Action  Action
	Outcome Outcome
	Err     error
}

// Dispatch runs a on its own goroutine. The channel yields exactly one Result
// and is then closed.
func (e *Engine) Dispatch(ctx context.Context, a Action) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		res := Result{Action: a}
		switch a.Kind {
		case ActionAdd:
			res.Outcome, res.Err = e.Add(ctx, a.Entry)
		case ActionEdit:
			res.Outcome, res.Err = e.Edit(ctx, a.Index, a.Entry)
		case ActionDelete:
			res.Outcome, res.Err = e.Delete(ctx, a.Index)
		default:
			res.Err = fmt.Errorf("unknown action %q", a.Kind)
		}
		out <- res
	}()
	return out
}
