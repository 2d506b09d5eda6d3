package scoreboard

import (
	"fmt"
	"strings"

	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/msgcat"
)

// Formatter renders boards, history and operation results through the message catalog.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	return &Formatter{cat: cat}
}

// Message renders key, falling back to the key itself when the template fails.
func (f *Formatter) Message(key string, data map[string]any) string {
	if f == nil || f.cat == nil {
		return key
	}
	out, err := f.cat.Render(key, data)
	if err != nil {
		return key
	}
	return out
}

// Status notes printed under the board.
type Status struct {
	Stale   bool
	Offline bool
	Queued  int
}

func (f *Formatter) Board(b Board, st Status) string {
	var sb strings.Builder
	sb.WriteString(f.Message("board.header", map[string]any{"P1": b.P1Name, "P2": b.P2Name}))
	sb.WriteString("\n")

	section := ""
	for _, r := range b.Rows {
		if r.Section != section {
			section = r.Section
			sb.WriteString(f.Message("board.section", map[string]any{"Name": section}))
			sb.WriteString("\n")
		}
		sb.WriteString(f.Message("board.row", map[string]any{
			"Label": r.Label,
			"P1":    r.P1,
			"P2":    r.P2,
			"Mark":  mark(r.Leader),
		}))
		sb.WriteString("\n")
	}

	sb.WriteString(f.Message("board.winrate", map[string]any{"P1Rate": b.P1WinRate, "P2Rate": b.P2WinRate}))
	sb.WriteString("\n")
	sb.WriteString(f.Message("board.h2h", map[string]any{"P1Share": b.H2H, "P2Share": 100 - b.H2H}))
	if st.Offline {
		sb.WriteString("\n")
		sb.WriteString(f.Message("board.offline", map[string]any{"Queued": st.Queued}))
	}
	if st.Stale {
		sb.WriteString("\n")
		sb.WriteString(f.Message("board.stale", nil))
	}
	return sb.String()
}

func mark(l Leader) string {
	switch l {
	case LeaderP1:
		return "<"
	case LeaderP2:
		return ">"
	default:
		return "="
	}
}

// History lists entries newest first, numbered from 1.
func (f *Formatter) History(entries []match.Entry, p1, p2 string, detailed bool) string {
	if len(entries) == 0 {
		return f.Message("history.empty", nil)
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.Message("history.row", map[string]any{
			"Index":   i + 1,
			"Date":    displayDate(e),
			"P1":      p1,
			"P2":      p2,
			"P1Goals": match.GoalsFor(e, match.P1),
			"P2Goals": match.GoalsFor(e, match.P2),
			"Result":  fmt.Sprintf("%s %s", p1, e.Result),
		}))
		if !detailed {
			continue
		}
		for _, side := range []match.Side{match.P1, match.P2} {
			name := p1
			if side == match.P2 {
				name = p2
			}
			g := e.Goals(side)
			sb.WriteString("\n")
			sb.WriteString(f.Message("history.breakdown", map[string]any{
				"Side":     name,
				"Normal":   g.Normal,
				"Penalty":  g.Penalty,
				"Freekick": g.Freekick,
				"Corner":   g.Corner,
				"Own":      g.Own,
			}))
		}
	}
	return sb.String()
}

func displayDate(e match.Entry) string {
	if t, err := e.PlayedAt(); err == nil {
		return t.Format("2006-01-02 15:04")
	}
	if e.MatchDate == "" {
		return "-"
	}
	return e.MatchDate
}
