package scoreboard

import (
	"strings"
	"testing"

	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/msgcat"
	"github.com/park285/h2h-ledger/internal/stats"
)

func samplePair() stats.Pair {
	p := stats.Baseline("Shakthi", "Shynu")
	p.P1.Stats = stats.Stats{TotalMatches: 4, Wins: 3, Losses: 1, TotalGoals: 9, OwnGoals: 1}
	p.P1.ConcededMatches = 2
	p.P2.Stats = stats.Stats{TotalMatches: 4, Wins: 1, Losses: 3, TotalGoals: 5}
	p.P2.ConcededMatches = 4
	return p
}

func rowFor(t *testing.T, b Board, key string) Row {
	t.Helper()
	for _, r := range b.Rows {
		if r.Key == key {
			return r
		}
	}
	t.Fatalf("no row %s", key)
	return Row{}
}

func TestBuildLeaders(t *testing.T) {
	b := Build(samplePair())
	cases := map[string]Leader{
		"wins":            LeaderP1,
		"losses":          LeaderP1, // lower is better
		"ownGoals":        LeaderP2,
		"concededMatches": LeaderP1,
		"totalMatches":    Tie,
		"draws":           Tie,
	}
	for key, want := range cases {
		if got := rowFor(t, b, key).Leader; got != want {
			t.Fatalf("%s leader = %v, want %v", key, got, want)
		}
	}
	if b.P1WinRate != 75 || b.P2WinRate != 25 || b.H2H != 75 {
		t.Fatalf("rates = %d/%d h2h=%d", b.P1WinRate, b.P2WinRate, b.H2H)
	}
}

func TestH2HDefaultsToFifty(t *testing.T) {
	if got := H2HPercent(stats.Baseline("a", "b")); got != 50 {
		t.Fatalf("h2h = %d", got)
	}
}

func newTestFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	return NewFormatter(cat)
}

func TestBoardRendering(t *testing.T) {
	f := newTestFormatter(t)
	out := f.Board(Build(samplePair()), Status{Offline: true, Queued: 2})
	for _, want := range []string{"Shakthi vs Shynu", "-- GOALS --", "-- DEFENCE --", "Conceded Matches", "2 queued"} {
		if !strings.Contains(out, want) {
			t.Fatalf("board misses %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cached figures") {
		t.Fatalf("stale note printed for fresh data")
	}
}

func TestHistoryRendering(t *testing.T) {
	f := newTestFormatter(t)
	if out := f.History(nil, "A", "B", false); out != "No matches recorded yet." {
		t.Fatalf("empty = %q", out)
	}
	entries := []match.Entry{{
		MatchDate: "2025-03-01T20:00",
		Result:    match.Win,
		P1:        match.Goals{Normal: 2, Penalty: 1},
		P2:        match.Goals{Normal: 1, Own: 1},
	}}
	out := f.History(entries, "A", "B", true)
	if !strings.Contains(out, "#1  2025-03-01 20:00  A 4 - 1 B  (A win)") {
		t.Fatalf("row = %q", out)
	}
	if !strings.Contains(out, "B: normal 1 penalty 0 freekick 0 corner 0 own 1") {
		t.Fatalf("breakdown missing: %q", out)
	}
}
