package delta

import (
	"testing"

	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
)

func winEntry() match.Entry {
	return match.Entry{
		MatchDate: "2025-03-01T18:30",
		Result:    match.Win,
		P1:        match.Goals{Normal: 3},
		P2:        match.Goals{Normal: 1},
	}
}

func TestComputeWinScenario(t *testing.T) {
	d := Compute(winEntry())
	want1 := Delta{TotalMatches: 1, TotalGoals: 3, Wins: 1, ConcededMatches: 1}
	want2 := Delta{TotalMatches: 1, TotalGoals: 1, Losses: 1, ConcededMatches: 1}
	if d.P1 != want1 {
		t.Fatalf("p1 delta = %+v, want %+v", d.P1, want1)
	}
	if d.P2 != want2 {
		t.Fatalf("p2 delta = %+v, want %+v", d.P2, want2)
	}
}

func TestComputeOwnGoalsAndCleanSheet(t *testing.T) {
	e := match.Entry{
		Result: match.Loss,
		P1:     match.Goals{Own: 2},
		P2:     match.Goals{Penalty: 1, Freekick: 1},
	}
	d := Compute(e)
	if d.P1.OwnGoals != 2 || d.P1.TotalGoals != 0 || d.P1.Losses != 1 || d.P1.ConcededMatches != 1 {
		t.Fatalf("unexpected p1 delta: %+v", d.P1)
	}
	if d.P2.TotalGoals != 4 || d.P2.PenaltyGoals != 1 || d.P2.FreekickGoals != 1 || d.P2.Wins != 1 {
		t.Fatalf("unexpected p2 delta: %+v", d.P2)
	}
	// P1 scored nothing for P2 to concede.
	if d.P2.ConcededMatches != 0 {
		t.Fatalf("p2 conceded = %d, want 0", d.P2.ConcededMatches)
	}
}

func TestApplyReverseRoundTrip(t *testing.T) {
	base := stats.Pair{
		P1: stats.Aggregate{Name: "a", Stats: stats.Stats{TotalMatches: 4, Wins: 2, Draws: 1, Losses: 1, TotalGoals: 9, CornerGoals: 1, OwnGoals: 1}, ConcededMatches: 3},
		P2: stats.Aggregate{Name: "b", Stats: stats.Stats{TotalMatches: 4, Wins: 1, Draws: 1, Losses: 2, TotalGoals: 6, OwnGoals: 1, FreekickGoals: 1}, ConcededMatches: 4},
	}
	entries := []match.Entry{
		winEntry(),
		{Result: match.Draw, P1: match.Goals{Corner: 1, Own: 1}, P2: match.Goals{Freekick: 1}},
		{Result: match.Loss},
	}
	for _, e := range entries {
		d := Compute(e)
		reversed, issues := ApplyPairChecked(base, d.Reverse())
		if len(issues) != 0 {
			t.Fatalf("unexpected clamping: %v", issues[0])
		}
		again := ApplyPair(reversed, d)
		if !again.Equal(base) {
			t.Fatalf("round trip mismatch for %+v:\n got %+v\nwant %+v", e, again, base)
		}
	}
}

func TestApplyNeverNegative(t *testing.T) {
	a := stats.Aggregate{Name: "a", Stats: stats.Stats{TotalMatches: 1, Wins: 1, TotalGoals: 1}}
	d := Compute(winEntry()).P1.Reverse()
	got, ie := ApplyChecked(a, d)
	if got.Stats.TotalGoals != 0 || got.ConcededMatches != 0 {
		t.Fatalf("fields not clamped: %+v", got)
	}
	for _, f := range []string{"totalMatches", "totalGoals", "wins", "losses", "draws", "concededMatches"} {
		if v, _ := got.Value(f); v < 0 {
			t.Fatalf("%s = %d < 0", f, v)
		}
	}
	if ie == nil || ie.Clamped["totalGoals"] != -2 || ie.Clamped["concededMatches"] != -1 {
		t.Fatalf("clamping not reported: %+v", ie)
	}
	if _, ok := ie.Clamped["wins"]; ok {
		t.Fatalf("wins reached exactly zero and must not be reported")
	}
}

func TestEditEquivalentToDeleteThenAdd(t *testing.T) {
	base := stats.Baseline("a", "b")
	old := winEntry()
	next := match.Entry{Result: match.Draw, P1: match.Goals{Normal: 1}, P2: match.Goals{Normal: 1}}

	afterAdd, _ := ApplyEntry(base, old)
	afterReverse, _ := ReverseEntry(afterAdd, old)
	afterEdit, _ := ApplyEntry(afterReverse, next)

	direct, _ := ApplyEntry(base, next)
	if !afterEdit.Equal(direct) {
		t.Fatalf("edit != delete+add:\n got %+v\nwant %+v", afterEdit, direct)
	}
	if afterEdit.P1.Stats.Wins != 0 || afterEdit.P1.Stats.Draws != 1 {
		t.Fatalf("expected wins back at 0 and one draw, got %+v", afterEdit.P1.Stats)
	}
	if err := afterEdit.Validate(); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestReversePairUndoesApplyPair(t *testing.T) {
	base := stats.Baseline("a", "b")
	d := Compute(winEntry())
	if got := ReversePair(ApplyPair(base, d), d); !got.Equal(base) {
		t.Fatalf("ReversePair = %+v, want baseline", got)
	}
}
