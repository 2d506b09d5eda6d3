// Package scoreboard builds the side-by-side comparison and history views.
package scoreboard

import (
	"github.com/park285/h2h-ledger/internal/stats"
)

const (
	SectionResults = "RESULTS"
	SectionGoals   = "GOALS"
	SectionDefence = "DEFENCE"
)

// Def describes one compared statistic. Key is the aggregate's wire name.
type Def struct {
	Key         string
	Label       string
	Section     string
	LowerBetter bool
}

var Defs = []Def{
	{Key: "totalMatches", Label: "Total Matches", Section: SectionResults},
	{Key: "wins", Label: "Wins", Section: SectionResults},
	{Key: "draws", Label: "Draws", Section: SectionResults},
	{Key: "losses", Label: "Losses", Section: SectionResults, LowerBetter: true},
	{Key: "totalGoals", Label: "Total Goals", Section: SectionGoals},
	{Key: "penaltyGoals", Label: "Penalty Goals", Section: SectionGoals},
	{Key: "freekickGoals", Label: "Freekick Goals", Section: SectionGoals},
	{Key: "cornerGoals", Label: "Corner Goals", Section: SectionGoals},
	{Key: "ownGoals", Label: "Own Goals", Section: SectionGoals, LowerBetter: true},
	{Key: "concededMatches", Label: "Conceded Matches", Section: SectionDefence, LowerBetter: true},
}

type Leader int

const (
	Tie Leader = iota
	LeaderP1
	LeaderP2
)

type Row struct {
	Def
	P1     int
	P2     int
	Leader Leader
}

type Board struct {
	P1Name    string
	P2Name    string
	Rows      []Row
	P1WinRate int
	P2WinRate int
	// H2H is P1's share of all wins in percent; 50 when nobody has won.
	H2H int
}

func Build(p stats.Pair) Board {
	b := Board{
		P1Name:    p.P1.Name,
		P2Name:    p.P2.Name,
		Rows:      make([]Row, 0, len(Defs)),
		P1WinRate: p.P1.WinRate(),
		P2WinRate: p.P2.WinRate(),
		H2H:       H2HPercent(p),
	}
	for _, d := range Defs {
		v1, _ := p.P1.Value(d.Key)
		v2, _ := p.P2.Value(d.Key)
		b.Rows = append(b.Rows, Row{Def: d, P1: v1, P2: v2, Leader: leader(d, v1, v2)})
	}
	return b
}

func leader(d Def, v1, v2 int) Leader {
	switch {
	case v1 == v2:
		return Tie
	case (v1 < v2) == d.LowerBetter:
		return LeaderP1
	default:
		return LeaderP2
	}
}

func H2HPercent(p stats.Pair) int {
	w1, w2 := p.P1.Stats.Wins, p.P2.Stats.Wins
	total := w1 + w2
	if total <= 0 {
		return 50
	}
	return (w1*100 + total/2) / total
}
