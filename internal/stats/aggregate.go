package stats

import (
	"fmt"
	"strings"
)

// Stats is the nested goal/result breakdown of one participant.
type Stats struct {
	TotalMatches  int `json:"totalMatches"`
	TotalGoals    int `json:"totalGoals"`
	Wins          int `json:"wins"`
	Draws         int `json:"draws"`
	Losses        int `json:"losses"`
	PenaltyGoals  int `json:"penaltyGoals"`
	FreekickGoals int `json:"freekickGoals"`
	CornerGoals   int `json:"cornerGoals"`
	OwnGoals      int `json:"ownGoals"` // scored into the participant's own net
}

// Aggregate is the cumulative record of one named participant.
// ConcededMatches lives outside the nested breakdown on the wire.
type Aggregate struct {
	ID              string `json:"_id,omitempty"`
	Name            string `json:"name"`
	Stats           Stats  `json:"stats"`
	ConcededMatches int    `json:"concededMatches"`
}

// Pair is the P1/P2 couple returned by the remote apply and reverse endpoints.
type Pair struct {
	P1 Aggregate `json:"me"`
	P2 Aggregate `json:"friend"`
}

// Zero returns a freshly observed participant.
func Zero(name string) Aggregate {
	return Aggregate{Name: strings.TrimSpace(name)}
}

// Baseline is the all-zero pair used when the remote store cannot be read.
func Baseline(p1, p2 string) Pair {
	return Pair{P1: Zero(p1), P2: Zero(p2)}
}

// FromList picks both participants out of a GET /players listing.
// A participant missing from the list starts at zero.
func FromList(list []Aggregate, p1, p2 string) Pair {
	out := Baseline(p1, p2)
	for _, a := range list {
		switch {
		case sameName(a.Name, p1):
			out.P1 = a
		case sameName(a.Name, p2):
			out.P2 = a
		}
	}
	return out
}

func sameName(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// WinRate is the rounded share of wins in percent.
func (a Aggregate) WinRate() int {
	if a.Stats.TotalMatches <= 0 {
		return 0
	}
	return (a.Stats.Wins*100 + a.Stats.TotalMatches/2) / a.Stats.TotalMatches
}

// Equal compares the counters of two aggregates, ignoring identity fields.
func (a Aggregate) Equal(b Aggregate) bool {
	return a.Stats == b.Stats && a.ConcededMatches == b.ConcededMatches
}

// Equal reports whether both sides carry identical counters.
func (p Pair) Equal(o Pair) bool {
	return p.P1.Equal(o.P1) && p.P2.Equal(o.P2)
}

// InvariantError lists the fields of an aggregate that break the model rules.
type InvariantError struct {
	Name   string
	Fields []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("aggregate %q violates invariants: %s", e.Name, strings.Join(e.Fields, ", "))
}

// Validate checks totalMatches = wins+draws+losses and that no counter is negative.
func (a Aggregate) Validate() error {
	var bad []string
	for _, f := range a.fields() {
		if f.value < 0 {
			bad = append(bad, f.name+"<0")
		}
	}
	s := a.Stats
	if s.TotalMatches != s.Wins+s.Draws+s.Losses {
		bad = append(bad, "totalMatches!=wins+draws+losses")
	}
	if len(bad) == 0 {
		return nil
	}
	return &InvariantError{Name: a.Name, Fields: bad}
}

// Validate checks both sides; the first violation wins.
func (p Pair) Validate() error {
	if err := p.P1.Validate(); err != nil {
		return err
	}
	return p.P2.Validate()
}

type namedField struct {
	name  string
	value int
}

func (a Aggregate) fields() []namedField {
	s := a.Stats
	return []namedField{
		{"totalMatches", s.TotalMatches},
		{"totalGoals", s.TotalGoals},
		{"wins", s.Wins},
		{"draws", s.Draws},
		{"losses", s.Losses},
		{"penaltyGoals", s.PenaltyGoals},
		{"freekickGoals", s.FreekickGoals},
		{"cornerGoals", s.CornerGoals},
		{"ownGoals", s.OwnGoals},
		{"concededMatches", a.ConcededMatches},
	}
}

// Value returns a counter by its wire name; ok is false for unknown keys.
func (a Aggregate) Value(key string) (int, bool) {
	for _, f := range a.fields() {
		if f.name == key {
			return f.value, true
		}
	}
	return 0, false
}
