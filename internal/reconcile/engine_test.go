package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/remote"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
)

func TestAddWinScenario(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()

	out, err := te.Add(ctx, winEntry())
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	p := te.State().Snapshot().Pair
	if p.P1.Stats.TotalGoals != 3 || p.P1.Stats.Wins != 1 || p.P1.ConcededMatches != 1 {
		t.Fatalf("P1 = %+v", p.P1)
	}
	if p.P2.Stats.TotalGoals != 1 || p.P2.Stats.Losses != 1 || p.P2.ConcededMatches != 1 {
		t.Fatalf("P2 = %+v", p.P2)
	}
	list := te.entries(t)
	if len(list) != 1 || list[0].ID != out.Entry.ID || out.Entry.ID == "" {
		t.Fatalf("ledger = %+v, outcome id %q", list, out.Entry.ID)
	}
	if out.Mode != statestore.ModeOnline {
		t.Fatalf("mode = %s", out.Mode)
	}
	if te.State().Snapshot().Pending {
		t.Fatalf("pending flag left set")
	}
}

func TestAddNewestFirst(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	first, _ := te.Add(ctx, winEntry())
	second, _ := te.Add(ctx, drawEntry())
	list := te.entries(t)
	if len(list) != 2 || list[0].ID != second.Entry.ID || list[1].ID != first.Entry.ID {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestAddFailureLeavesStateUntouched(t *testing.T) {
	te := newTestEngine(t, Options{})
	te.remote.setHook(func(call string, n int) error {
		if call == "submit" {
			return errors.New("boom")
		}
		return nil
	})
	before := te.State().Snapshot()

	if _, err := te.Add(context.Background(), winEntry()); err == nil {
		t.Fatalf("expected failure")
	}
	after := te.State().Snapshot()
	if !after.Pair.Equal(before.Pair) {
		t.Fatalf("aggregates changed on failure")
	}
	if after.Pending {
		t.Fatalf("pending flag left set after failure")
	}
	if len(te.entries(t)) != 0 {
		t.Fatalf("ledger changed on failure")
	}
}

func TestAddRejectsInvalidResult(t *testing.T) {
	te := newTestEngine(t, Options{})
	e := winEntry()
	e.Result = "forfeit"
	if _, err := te.Add(context.Background(), e); !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("err = %v", err)
	}
	if got := te.remote.mutations(); len(got) != 0 {
		t.Fatalf("no remote call expected, got %v", got)
	}
}

func TestEditToDrawNetsOneChange(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	added, _ := te.Add(ctx, winEntry())

	out, err := te.Edit(ctx, 0, drawEntry())
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	p1 := te.State().Snapshot().Pair.P1.Stats
	if p1.Wins != 0 || p1.Draws != 1 || p1.TotalMatches != 1 || p1.TotalGoals != 1 {
		t.Fatalf("P1 after edit = %+v", p1)
	}
	if want := []string{"submit", "reverse", "submit"}; !sameCalls(te.remote.mutations(), want) {
		t.Fatalf("calls = %v, want %v", te.remote.mutations(), want)
	}
	list := te.entries(t)
	if len(list) != 1 || list[0].Result != match.Draw || list[0].ID != added.Entry.ID || out.Entry.ID != added.Entry.ID {
		t.Fatalf("ledger after edit = %+v", list)
	}
}

func TestEditEquivalentToDeleteThenAdd(t *testing.T) {
	ctx := context.Background()
	base := match.Entry{MatchDate: "2025-01-01T10:00", Result: match.Loss, P1: match.Goals{Normal: 1, Own: 1}, P2: match.Goals{Normal: 2, Corner: 1}}

	edited := newTestEngine(t, Options{})
	_, _ = edited.Add(ctx, base)
	_, _ = edited.Add(ctx, winEntry())
	if _, err := edited.Edit(ctx, 0, drawEntry()); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	replaced := newTestEngine(t, Options{})
	_, _ = replaced.Add(ctx, base)
	_, _ = replaced.Add(ctx, winEntry())
	if _, err := replaced.Delete(ctx, 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := replaced.Add(ctx, drawEntry()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !edited.State().Snapshot().Pair.Equal(replaced.State().Snapshot().Pair) {
		t.Fatalf("edit diverges from delete+add:\n%+v\n%+v", edited.State().Snapshot().Pair, replaced.State().Snapshot().Pair)
	}
}

func TestEditStepTwoFailureCompensates(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	added, _ := te.Add(ctx, winEntry())
	afterAdd := te.State().Snapshot().Pair

	te.remote.setHook(func(call string, n int) error {
		if call == "submit" && n == 2 {
			return errors.New("rejected")
		}
		return nil
	})

	_, err := te.Edit(ctx, 0, drawEntry())
	var ee *EditError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *EditError", err)
	}
	if !ee.Compensated || ee.CompensationErr != nil {
		t.Fatalf("expected successful compensation: %+v", ee)
	}
	if want := []string{"submit", "reverse", "submit", "submit"}; !sameCalls(te.remote.mutations(), want) {
		t.Fatalf("calls = %v, want %v", te.remote.mutations(), want)
	}
	list := te.entries(t)
	if len(list) != 1 || list[0].ID != added.Entry.ID || list[0].Result != match.Win {
		t.Fatalf("ledger must keep the old entry, got %+v", list)
	}
	if !te.State().Snapshot().Pair.Equal(afterAdd) || !te.remote.snapshot().Equal(afterAdd) {
		t.Fatalf("aggregates not restored")
	}
	if te.State().Snapshot().Pending {
		t.Fatalf("pending flag left set")
	}
}

func TestEditCompensationFailureMarksStale(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _ = te.Add(ctx, winEntry())

	te.remote.setHook(func(call string, n int) error {
		if call == "submit" && n > 1 {
			return fmt.Errorf("attempt %d rejected", n)
		}
		return nil
	})

	_, err := te.Edit(ctx, 0, drawEntry())
	var ee *EditError
	if !errors.As(err, &ee) || ee.Compensated || ee.CompensationErr == nil {
		t.Fatalf("err = %#v", err)
	}
	snap := te.State().Snapshot()
	if !snap.Stale {
		t.Fatalf("cache must be flagged stale")
	}
	if !snap.Pair.Equal(te.remote.snapshot()) {
		t.Fatalf("cache must mirror the last known remote pair")
	}
	if list := te.entries(t); len(list) != 1 || list[0].Result != match.Win {
		t.Fatalf("ledger must keep the old entry, got %+v", list)
	}
}

func TestEditReverseFailureAborts(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _ = te.Add(ctx, winEntry())
	before := te.State().Snapshot().Pair

	te.remote.setHook(func(call string, n int) error {
		if call == "reverse" {
			return errors.New("down")
		}
		return nil
	})
	_, err := te.Edit(ctx, 0, drawEntry())
	if err == nil {
		t.Fatalf("expected failure")
	}
	var ee *EditError
	if errors.As(err, &ee) {
		t.Fatalf("a failed reversal needs no compensation, got %v", err)
	}
	if want := []string{"submit", "reverse"}; !sameCalls(te.remote.mutations(), want) {
		t.Fatalf("calls = %v, want %v", te.remote.mutations(), want)
	}
	if !te.State().Snapshot().Pair.Equal(before) {
		t.Fatalf("aggregates changed")
	}
}

func TestDeleteOnlyEntryRestoresBaseline(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	baseline := te.State().Snapshot().Pair
	_, _ = te.Add(ctx, winEntry())

	if _, err := te.Delete(ctx, 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !te.State().Snapshot().Pair.Equal(baseline) {
		t.Fatalf("baseline not restored: %+v", te.State().Snapshot().Pair)
	}
	if len(te.entries(t)) != 0 {
		t.Fatalf("ledger not empty")
	}
}

func TestIndexOutOfRange(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	if _, err := te.Delete(ctx, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Delete err = %v", err)
	}
	if _, err := te.Edit(ctx, 3, drawEntry()); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Edit err = %v", err)
	}
	if len(te.remote.mutations()) != 0 {
		t.Fatalf("no remote call expected")
	}
}

func TestBusyEntryRejected(t *testing.T) {
	te := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _ = te.Add(ctx, winEntry())

	release := make(chan struct{})
	entered := make(chan struct{})
	te.remote.setHook(func(call string, n int) error {
		if call == "reverse" && n == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	done := te.Dispatch(ctx, Action{Kind: ActionDelete, Index: 0})
	<-entered

	if busy, _ := te.Busy(ctx, 0); !busy {
		t.Fatalf("entry should be busy")
	}
	if !te.State().Snapshot().Pending {
		t.Fatalf("pending flag should be set while in flight")
	}
	if _, err := te.Edit(ctx, 0, drawEntry()); !errors.Is(err, ErrEntryBusy) {
		t.Fatalf("second op err = %v, want ErrEntryBusy", err)
	}

	close(release)
	res := <-done
	if res.Err != nil {
		t.Fatalf("delete: %v", res.Err)
	}
	if te.State().Snapshot().Pending {
		t.Fatalf("pending flag left set")
	}
}

func TestDispatchDeliversOneResult(t *testing.T) {
	te := newTestEngine(t, Options{})
	ch := te.Dispatch(context.Background(), Action{Kind: ActionAdd, Entry: winEntry()})
	select {
	case res, ok := <-ch:
		if !ok || res.Err != nil || res.Action.Kind != ActionAdd {
			t.Fatalf("result = %+v ok=%v", res, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no result")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel must be closed after one result")
	}
}

func TestInitFallsBackToBaseline(t *testing.T) {
	kv := ledger.NewMemoryKV()
	r := newFakeRemote()
	r.setHook(func(call string, n int) error {
		return fmt.Errorf("%w: dial refused", remote.ErrTransport)
	})
	start := stats.Baseline("x", "y")
	start.P1.Stats.Wins, start.P1.Stats.TotalMatches = 5, 5
	st := statestore.New(start)
	eng := New(ledger.NewStore(kv, "", nil), st, r, NewOutbox(kv), Options{PlayerOne: p1Name, PlayerTwo: p2Name})

	if _, err := eng.Init(context.Background()); err != nil {
		t.Fatalf("Init must not fail on remote errors: %v", err)
	}
	snap := st.Snapshot()
	if !snap.Pair.Equal(stats.Baseline(p1Name, p2Name)) || snap.Pair.P1.Name != p1Name {
		t.Fatalf("expected zero baseline, got %+v", snap.Pair)
	}
	if !snap.Stale || eng.Connected() {
		t.Fatalf("stale=%v connected=%v", snap.Stale, eng.Connected())
	}
}

func TestInitWithCorruptLedger(t *testing.T) {
	kv := ledger.NewMemoryKV()
	_ = kv.Set(context.Background(), ledger.DefaultKey, []byte("not json at all"))
	eng := New(ledger.NewStore(kv, "", nil), statestore.New(stats.Pair{}), newFakeRemote(), nil, Options{PlayerOne: p1Name, PlayerTwo: p2Name})
	list, err := eng.Init(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("Init = %v, %v", list, err)
	}
}

func TestTransportFailureMarksDisconnected(t *testing.T) {
	te := newTestEngine(t, Options{})
	te.remote.setHook(func(call string, n int) error {
		return fmt.Errorf("%w: timeout", remote.ErrTransport)
	})
	_, err := te.Add(context.Background(), winEntry())
	if !errors.Is(err, remote.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if te.Connected() {
		t.Fatalf("transport failure must mark the engine disconnected")
	}
}
