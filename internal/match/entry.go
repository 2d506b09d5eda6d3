package match

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result is always read from P1's perspective.
type Result string

const (
	Win  Result = "win"
	Draw Result = "draw"
	Loss Result = "loss"
)

// ParseResult accepts win/draw/loss in any case.
func ParseResult(s string) (Result, error) {
	switch r := Result(strings.ToLower(strings.TrimSpace(s))); r {
	case Win, Draw, Loss:
		return r, nil
	default:
		return "", fmt.Errorf("unknown result %q", s)
	}
}

// Valid reports whether r is one of the three outcomes.
func (r Result) Valid() bool {
	return r == Win || r == Draw || r == Loss
}

// Mirror is the same result seen by P2.
func (r Result) Mirror() Result {
	switch r {
	case Win:
		return Loss
	case Loss:
		return Win
	default:
		return r
	}
}

// Side selects one of the two participants.
type Side int

const (
	P1 Side = iota
	P2
)

func (s Side) Other() Side {
	if s == P1 {
		return P2
	}
	return P1
}

func (s Side) String() string {
	if s == P1 {
		return "p1"
	}
	return "p2"
}

// Goals is one participant's per-category breakdown for a single match.
// Own counts goals this participant put into their own net.
type Goals struct {
	Normal   int
	Penalty  int
	Freekick int
	Corner   int
	Own      int
}

func (g Goals) clamped() Goals {
	return Goals{
		Normal:   atLeastZero(g.Normal),
		Penalty:  atLeastZero(g.Penalty),
		Freekick: atLeastZero(g.Freekick),
		Corner:   atLeastZero(g.Corner),
		Own:      atLeastZero(g.Own),
	}
}

// scored excludes own goals, which credit the opponent.
func (g Goals) scored() int {
	return g.Normal + g.Penalty + g.Freekick + g.Corner
}

// Entry is one recorded match. Entries are replaced, never patched.
type Entry struct {
	ID        string
	MatchDate string // YYYY-MM-DDTHH:MM
	Result    Result
	P1        Goals
	P2        Goals
}

// Goals returns the breakdown of one side.
func (e Entry) Goals(s Side) Goals {
	if s == P1 {
		return e.P1
	}
	return e.P2
}

// ResultFor is the result seen by the given side.
func (e Entry) ResultFor(s Side) Result {
	if s == P1 {
		return e.Result
	}
	return e.Result.Mirror()
}

// WithID returns a copy carrying id.
func (e Entry) WithID(id string) Entry {
	e.ID = id
	return e
}

var dateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
}

// PlayedAt parses MatchDate. Local time is assumed when no zone is present.
func (e Entry) PlayedAt() (time.Time, error) {
	s := strings.TrimSpace(e.MatchDate)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse match date %q", e.MatchDate)
}

// wireEntry is the flat JSON shape the remote store and the persisted ledger use.
type wireEntry struct {
	ID        string `json:"_id,omitempty"`
	MatchDate string `json:"matchDate"`
	Result    Result `json:"result"`

	MeNormal   int `json:"me_normalGoals"`
	MePenalty  int `json:"me_penaltyGoals"`
	MeFreekick int `json:"me_freekickGoals"`
	MeCorner   int `json:"me_cornerGoals"`
	MeOwn      int `json:"me_ownGoals"`

	FriendNormal   int `json:"friend_normalGoals"`
	FriendPenalty  int `json:"friend_penaltyGoals"`
	FriendFreekick int `json:"friend_freekickGoals"`
	FriendCorner   int `json:"friend_cornerGoals"`
	FriendOwn      int `json:"friend_ownGoals"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{
		ID:             e.ID,
		MatchDate:      e.MatchDate,
		Result:         e.Result,
		MeNormal:       e.P1.Normal,
		MePenalty:      e.P1.Penalty,
		MeFreekick:     e.P1.Freekick,
		MeCorner:       e.P1.Corner,
		MeOwn:          e.P1.Own,
		FriendNormal:   e.P2.Normal,
		FriendPenalty:  e.P2.Penalty,
		FriendFreekick: e.P2.Freekick,
		FriendCorner:   e.P2.Corner,
		FriendOwn:      e.P2.Own,
	})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Entry{
		ID:        w.ID,
		MatchDate: w.MatchDate,
		Result:    w.Result,
		P1:        Goals{Normal: w.MeNormal, Penalty: w.MePenalty, Freekick: w.MeFreekick, Corner: w.MeCorner, Own: w.MeOwn},
		P2:        Goals{Normal: w.FriendNormal, Penalty: w.FriendPenalty, Freekick: w.FriendFreekick, Corner: w.FriendCorner, Own: w.FriendOwn},
	}
	return nil
}
