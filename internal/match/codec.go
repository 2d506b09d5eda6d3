package match

import (
	"fmt"
	"strings"
)

// Form holds the raw counters of the entry dialog, keyed like the original form
// (me_n, me_p, me_f, me_c, me_og, fr_n, ...).
type Form map[string]int

// FormKeys lists every counter a form understands.
var FormKeys = []string{
	"me_n", "me_p", "me_f", "me_c", "me_og",
	"fr_n", "fr_p", "fr_f", "fr_c", "fr_og",
}

// NewForm returns a form with every counter at zero.
func NewForm() Form {
	f := make(Form, len(FormKeys))
	for _, k := range FormKeys {
		f[k] = 0
	}
	return f
}

// Change steps a counter up or down; it never goes below zero.
func (f Form) Change(key string, delta int) error {
	if !knownKey(key) {
		return fmt.Errorf("unknown form field %q", key)
	}
	f[key] = atLeastZero(f[key] + delta)
	return nil
}

// Preview is the live goal total per side, computed exactly like the aggregates.
func (f Form) Preview() (p1, p2 int) {
	e := Normalize(f, "", "", "")
	return GoalsFor(e, P1), GoalsFor(e, P2)
}

func knownKey(key string) bool {
	for _, k := range FormKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Normalize turns raw form input into a ledger entry. Absent counters are 0,
// negatives are clamped to 0 and date/clock are joined into one timestamp.
func Normalize(form Form, date, clock string, result Result) Entry {
	get := func(k string) int { return atLeastZero(form[k]) }
	return Entry{
		MatchDate: joinDate(date, clock),
		Result:    result,
		P1: Goals{
			Normal:   get("me_n"),
			Penalty:  get("me_p"),
			Freekick: get("me_f"),
			Corner:   get("me_c"),
			Own:      get("me_og"),
		},
		P2: Goals{
			Normal:   get("fr_n"),
			Penalty:  get("fr_p"),
			Freekick: get("fr_f"),
			Corner:   get("fr_c"),
			Own:      get("fr_og"),
		},
	}
}

// Sanitize clamps every count of an already built entry.
func Sanitize(e Entry) Entry {
	e.P1 = e.P1.clamped()
	e.P2 = e.P2.clamped()
	return e
}

// FromEntry rebuilds the form and the date/clock pair, for prefilling an edit.
func FromEntry(e Entry) (form Form, date, clock string) {
	form = Form{
		"me_n": e.P1.Normal, "me_p": e.P1.Penalty, "me_f": e.P1.Freekick, "me_c": e.P1.Corner, "me_og": e.P1.Own,
		"fr_n": e.P2.Normal, "fr_p": e.P2.Penalty, "fr_f": e.P2.Freekick, "fr_c": e.P2.Corner, "fr_og": e.P2.Own,
	}
	if t, err := e.PlayedAt(); err == nil {
		return form, t.Format("2006-01-02"), t.Format("15:04")
	}
	date, clock, _ = strings.Cut(e.MatchDate, "T")
	return form, date, clock
}

// GoalsFor is what a side scored: its four categories plus the opponent's own goals.
func GoalsFor(e Entry, s Side) int {
	return e.Goals(s).clamped().scored() + atLeastZero(e.Goals(s.Other()).Own)
}

func joinDate(date, clock string) string {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	switch {
	case date == "":
		return ""
	case clock == "":
		return date + "T00:00"
	default:
		return date + "T" + clock
	}
}

func atLeastZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
