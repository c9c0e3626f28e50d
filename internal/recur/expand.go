package recur

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// Expander materializes occurrences of stored events for a query window.
// The zero value is ready to use.
type Expander struct {
	// Location, if set, is the zone in which recurrence arithmetic runs
	// and occurrences are reported. Stored instants only keep their UTC
	// offset, so setting the user's IANA zone here lets the wall-clock
	// time survive DST changes. If nil, each event's own Start location
	// is used.
	Location *time.Location

	// MaxOccurrences caps the occurrences produced per event. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrences int
}

// Expand returns the occurrences of ev overlapping [from, to), ordered by
// start, using the zero Expander.
func Expand(ev model.Event, from, to time.Time) []model.Occurrence {
	return Expander{}.Expand(ev, from, to)
}

// Expand returns the occurrences of ev overlapping [from, to), ordered by
// start. It never mutates ev; an empty or inverted window yields nil.
func (x Expander) Expand(ev model.Event, from, to time.Time) []model.Occurrence {
	if !from.Before(to) {
		return nil
	}

	loc := x.Location
	if loc == nil {
		loc = ev.Start.Location()
	}
	start := ev.Start.In(loc)
	end := ev.End.In(loc)

	switch ev.Repeat {
	case model.RepeatNone:
		return expandOnce(ev, start, end, from, to)
	case model.RepeatDaily, model.RepeatWeekly, model.RepeatMonthly, model.RepeatAnnually:
		return x.expandRecurring(ev, start, end, from, to)
	default:
		appLog.Warn("expand: skipping event with unknown repeat rule", "id", ev.ID, "repeat", ev.Repeat)
		return nil
	}
}

// ExpandAll expands every event and merges the results ordered by start,
// then by event id for occurrences starting at the same instant.
func (x Expander) ExpandAll(events []model.Event, from, to time.Time) []model.Occurrence {
	out := make([]model.Occurrence, 0)
	for _, ev := range events {
		out = append(out, x.Expand(ev, from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

func expandOnce(ev model.Event, start, end, from, to time.Time) []model.Occurrence {
	if !overlaps(start, end, from, to) {
		return nil
	}
	return []model.Occurrence{makeOccurrence(ev, start, end)}
}

func (x Expander) expandRecurring(ev model.Event, start, end, from, to time.Time) []model.Occurrence {
	r, err := rrule.NewRRule(ruleFor(ev.Repeat, start))
	if err != nil {
		// ruleFor only builds well-formed options.
		appLog.Error("expand: failed to build rule", err, "id", ev.ID, "repeat", ev.Repeat)
		return nil
	}

	// rrule works in whole seconds; search with a day of slack on both
	// sides and filter on the exact reconstructed instants below.
	span := occurrenceSpan(start, end)
	after := from.In(start.Location()).Add(-span).AddDate(0, 0, -1)
	before := to.In(start.Location()).AddDate(0, 0, 1)

	limit := x.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.Occurrence, 0)
	for _, day := range r.Between(after, before, true) {
		occStart := atClock(day, start)
		if occStart.Before(start) {
			continue
		}
		if !occStart.Before(to) {
			break
		}
		occEnd := occurrenceEnd(occStart, start, end)
		if !overlaps(occStart, occEnd, from, to) {
			continue
		}
		if len(out) == limit {
			appLog.Warn("expand: truncated occurrences for event due to cap", "id", ev.ID, "cap", limit)
			break
		}
		out = append(out, makeOccurrence(ev, occStart, occEnd))
	}
	return out
}

// ruleFor maps a repeat variant to rrule options anchored at start.
//
// Monthly and annual rules clamp to the last day of short months: a day
// of month d > 28 becomes "the last of BYMONTHDAY 28..d", which is d where
// it exists and the month's final day otherwise.
func ruleFor(repeat model.Repeat, start time.Time) rrule.ROption {
	opt := rrule.ROption{
		Dtstart: start,
	}
	switch repeat {
	case model.RepeatDaily:
		opt.Freq = rrule.DAILY
	case model.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
	case model.RepeatMonthly:
		opt.Freq = rrule.MONTHLY
		if d := start.Day(); d > 28 {
			opt.Bymonthday = daysFrom28(d)
			opt.Bysetpos = []int{-1}
		}
	case model.RepeatAnnually:
		opt.Freq = rrule.YEARLY
		if start.Month() == time.February && start.Day() == 29 {
			opt.Bymonth = []int{2}
			opt.Bymonthday = []int{28, 29}
			opt.Bysetpos = []int{-1}
		}
	}
	return opt
}

func daysFrom28(d int) []int {
	days := make([]int, 0, d-27)
	for i := 28; i <= d; i++ {
		days = append(days, i)
	}
	return days
}

// atClock places the wall-clock time of ref on day's calendar date.
func atClock(day, ref time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// occurrenceEnd places the clock time of end on the occurrence's date.
// A span under a day whose end clock is not after the start clock crosses
// midnight, so it ends on the following day and keeps its duration. For
// longer stored spans only the clock time counts, and an end clock not
// after the start clock runs the occurrence to the end of its day.
func occurrenceEnd(occStart, start, end time.Time) time.Time {
	if end.Equal(start) {
		return occStart
	}
	e := atClock(occStart, end.In(occStart.Location()))
	if e.After(occStart) {
		return e
	}
	y, m, d := occStart.Date()
	if end.Sub(start) < 24*time.Hour {
		return atClock(time.Date(y, m, d+1, 0, 0, 0, 0, occStart.Location()), e)
	}
	return time.Date(y, m, d+1, 0, 0, 0, 0, occStart.Location())
}

// occurrenceSpan bounds how long before the window an occurrence may start
// and still overlap it.
func occurrenceSpan(start, end time.Time) time.Duration {
	return occurrenceEnd(start, start, end).Sub(start)
}

// overlaps reports whether [s, e) intersects [from, to). A zero-length
// occurrence overlaps when its instant lies in the window.
func overlaps(s, e, from, to time.Time) bool {
	if s.Equal(e) {
		return !s.Before(from) && s.Before(to)
	}
	return s.Before(to) && e.After(from)
}

func makeOccurrence(ev model.Event, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		EventID:     ev.ID,
		Title:       ev.Title,
		Color:       ev.Color,
		Icon:        ev.Icon,
		Repeat:      ev.Repeat,
		InstanceKey: string(ev.ID) + "@" + start.UTC().Format(time.RFC3339Nano),
		Start:       start,
		End:         end,
	}
}
