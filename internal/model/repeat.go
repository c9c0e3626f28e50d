package model

import "strings"

// Repeat is the recurrence rule attached to an event. It is a closed set:
// every value other than the five constants below is invalid.
type Repeat string

const (
	RepeatNone     Repeat = "None"
	RepeatDaily    Repeat = "Daily"
	RepeatWeekly   Repeat = "Weekly"
	RepeatMonthly  Repeat = "Monthly"
	RepeatAnnually Repeat = "Annually"
)

// Repeats lists the recognized rules in display order.
var Repeats = []Repeat{RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatAnnually}

// Valid reports whether r is one of the recognized rules.
func (r Repeat) Valid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatAnnually:
		return true
	}
	return false
}

// Recurring reports whether r derives more than one occurrence.
func (r Repeat) Recurring() bool {
	return r.Valid() && r != RepeatNone
}

// UnmarshalText maps a missing rule to None and otherwise keeps the value
// verbatim, so that Validate can report unknown rules instead of silently
// dropping them.
func (r *Repeat) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*r = RepeatNone
		return nil
	}
	*r = Repeat(s)
	return nil
}

// ParseRepeat is the case-insensitive parser used by the CLI.
func ParseRepeat(s string) (Repeat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RepeatNone, nil
	}
	for _, r := range Repeats {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", &ValidationError{Field: "repeat", Message: "unknown rule " + s}
}
