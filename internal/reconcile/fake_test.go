package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/park285/h2h-ledger/internal/delta"
	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
)

const (
	p1Name = "Shakthi"
	p2Name = "Shynu"
)

// fakeRemote applies entries with the shared delta calculator. hook runs
// before every call with the call name and its 1-based count.
type fakeRemote struct {
	mu     sync.Mutex
	pair   stats.Pair
	calls  []string
	counts map[string]int
	hook   func(call string, n int) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{pair: stats.Baseline(p1Name, p2Name), counts: make(map[string]int)}
}

func (f *fakeRemote) enter(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.counts[call]++
	n := f.counts[call]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		return hook(call, n)
	}
	return nil
}

func (f *fakeRemote) Players(ctx context.Context) ([]stats.Aggregate, error) {
	if err := f.enter("players"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return []stats.Aggregate{f.pair.P1, f.pair.P2}, nil
}

func (f *fakeRemote) SubmitMatch(ctx context.Context, e match.Entry) (stats.Pair, error) {
	if err := f.enter("submit"); err != nil {
		return stats.Pair{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pair, _ = delta.ApplyEntry(f.pair, e)
	return f.pair, nil
}

func (f *fakeRemote) ReverseMatch(ctx context.Context, e match.Entry) (stats.Pair, error) {
	if err := f.enter("reverse"); err != nil {
		return stats.Pair{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pair, _ = delta.ReverseEntry(f.pair, e)
	return f.pair, nil
}

func (f *fakeRemote) setHook(h func(call string, n int) error) {
	f.mu.Lock()
	f.hook = h
	f.mu.Unlock()
}

// mutations lists submit/reverse calls in order.
func (f *fakeRemote) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c != "players" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) snapshot() stats.Pair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pair
}

type testEngine struct {
	*Engine
	remote *fakeRemote
	kv     ledger.KV
}

func newTestEngine(t *testing.T, opts Options) *testEngine {
	t.Helper()
	opts.PlayerOne, opts.PlayerTwo = p1Name, p2Name
	kv := ledger.NewMemoryKV()
	t.Cleanup(func() { _ = kv.Close() })
	r := newFakeRemote()
	eng := New(
		ledger.NewStore(kv, "", nil),
		statestore.New(stats.Baseline(p1Name, p2Name)),
		r,
		NewOutbox(kv),
		opts,
	)
	if _, err := eng.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testEngine{Engine: eng, remote: r, kv: kv}
}

func (te *testEngine) entries(t *testing.T) []match.Entry {
	t.Helper()
	list, err := te.Ledger().Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return list
}

func winEntry() match.Entry {
	return match.Entry{MatchDate: "2025-03-01T20:00", Result: match.Win, P1: match.Goals{Normal: 3}, P2: match.Goals{Normal: 1}}
}

func drawEntry() match.Entry {
	return match.Entry{MatchDate: "2025-03-01T20:00", Result: match.Draw, P1: match.Goals{Normal: 1}, P2: match.Goals{Normal: 1}}
}

func sameCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
