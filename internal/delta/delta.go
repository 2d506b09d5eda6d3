package delta

import (
	"fmt"
	"strings"

	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
)

// Delta is the signed change one ledger entry causes on one aggregate.
type Delta struct {
	TotalMatches    int
	TotalGoals      int
	Wins            int
	Draws           int
	Losses          int
	PenaltyGoals    int
	FreekickGoals   int
	CornerGoals     int
	OwnGoals        int
	ConcededMatches int
}

// PairDelta holds the delta of both participants for one entry.
type PairDelta struct {
	P1 Delta
	P2 Delta
}

// Compute derives what applying e adds to each side.
func Compute(e match.Entry) PairDelta {
	return PairDelta{P1: forSide(e, match.P1), P2: forSide(e, match.P2)}
}

func forSide(e match.Entry, s match.Side) Delta {
	g := match.Sanitize(e).Goals(s)
	d := Delta{
		TotalMatches:  1,
		TotalGoals:    match.GoalsFor(e, s),
		PenaltyGoals:  g.Penalty,
		FreekickGoals: g.Freekick,
		CornerGoals:   g.Corner,
		OwnGoals:      g.Own,
	}
	switch e.ResultFor(s) {
	case match.Win:
		d.Wins = 1
	case match.Draw:
		d.Draws = 1
	case match.Loss:
		d.Losses = 1
	}
	if match.GoalsFor(e, s.Other()) > 0 {
		d.ConcededMatches = 1
	}
	return d
}

// Reverse negates every field.
func (d Delta) Reverse() Delta {
	return Delta{
		TotalMatches:    -d.TotalMatches,
		TotalGoals:      -d.TotalGoals,
		Wins:            -d.Wins,
		Draws:           -d.Draws,
		Losses:          -d.Losses,
		PenaltyGoals:    -d.PenaltyGoals,
		FreekickGoals:   -d.FreekickGoals,
		CornerGoals:     -d.CornerGoals,
		OwnGoals:        -d.OwnGoals,
		ConcededMatches: -d.ConcededMatches,
	}
}

func (p PairDelta) Reverse() PairDelta {
	return PairDelta{P1: p.P1.Reverse(), P2: p.P2.Reverse()}
}

// IntegrityError reports the fields that had to be clamped at zero, i.e. the
// aggregate was already lower than what the delta removes.
type IntegrityError struct {
	Name    string
	Clamped map[string]int // field -> value before clamping
}

func (e *IntegrityError) Error() string {
	parts := make([]string, 0, len(e.Clamped))
	for _, k := range fieldOrder {
		if v, ok := e.Clamped[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", k, v))
		}
	}
	return fmt.Sprintf("aggregate %q clamped at zero: %s", e.Name, strings.Join(parts, ", "))
}

var fieldOrder = []string{
	"totalMatches", "totalGoals", "wins", "draws", "losses",
	"penaltyGoals", "freekickGoals", "cornerGoals", "ownGoals", "concededMatches",
}

// Apply adds d to a and clamps every field at zero.
func Apply(a stats.Aggregate, d Delta) stats.Aggregate {
	out, _ := ApplyChecked(a, d)
	return out
}

// ApplyChecked is Apply that also reports every field that needed clamping.
func ApplyChecked(a stats.Aggregate, d Delta) (stats.Aggregate, *IntegrityError) {
	var ie *IntegrityError
	add := func(name string, cur, inc int) int {
		v := cur + inc
		if v >= 0 {
			return v
		}
		if ie == nil {
			ie = &IntegrityError{Name: a.Name, Clamped: make(map[string]int)}
		}
		ie.Clamped[name] = v
		return 0
	}
	out := a
	s := &out.Stats
	s.TotalMatches = add("totalMatches", s.TotalMatches, d.TotalMatches)
	s.TotalGoals = add("totalGoals", s.TotalGoals, d.TotalGoals)
	s.Wins = add("wins", s.Wins, d.Wins)
	s.Draws = add("draws", s.Draws, d.Draws)
	s.Losses = add("losses", s.Losses, d.Losses)
	s.PenaltyGoals = add("penaltyGoals", s.PenaltyGoals, d.PenaltyGoals)
	s.FreekickGoals = add("freekickGoals", s.FreekickGoals, d.FreekickGoals)
	s.CornerGoals = add("cornerGoals", s.CornerGoals, d.CornerGoals)
	s.OwnGoals = add("ownGoals", s.OwnGoals, d.OwnGoals)
	out.ConcededMatches = add("concededMatches", out.ConcededMatches, d.ConcededMatches)
	return out, ie
}

// ApplyPair applies a pair delta to both sides.
func ApplyPair(p stats.Pair, d PairDelta) stats.Pair {
	out, _ := ApplyPairChecked(p, d)
	return out
}

// ReversePair undoes a pair delta on both sides.
func ReversePair(p stats.Pair, d PairDelta) stats.Pair {
	return ApplyPair(p, d.Reverse())
}

// ApplyPairChecked applies d and returns every clamping that happened on either side.
func ApplyPairChecked(p stats.Pair, d PairDelta) (stats.Pair, []*IntegrityError) {
	var issues []*IntegrityError
	p1, e1 := ApplyChecked(p.P1, d.P1)
	if e1 != nil {
		issues = append(issues, e1)
	}
	p2, e2 := ApplyChecked(p.P2, d.P2)
	if e2 != nil {
		issues = append(issues, e2)
	}
	return stats.Pair{P1: p1, P2: p2}, issues
}

// ApplyEntry adds the effect of e to p.
func ApplyEntry(p stats.Pair, e match.Entry) (stats.Pair, []*IntegrityError) {
	return ApplyPairChecked(p, Compute(e))
}

// ReverseEntry removes the effect of e from p, floor-clamped per field.
func ReverseEntry(p stats.Pair, e match.Entry) (stats.Pair, []*IntegrityError) {
	return ApplyPairChecked(p, Compute(e).Reverse())
}
