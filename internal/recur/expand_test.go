package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todocal/internal/model"
)

func event(id string, repeat model.Repeat, start, end time.Time) model.Event {
	return model.Event{
		Meta:   model.Meta{ID: model.ID(id)},
		Title:  "event " + id,
		Start:  start,
		End:    end,
		Repeat: repeat,
		Color:  "#336699",
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func starts(occs []model.Occurrence) []time.Time {
	out := make([]time.Time, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Start)
	}
	return out
}

func TestExpand_None(t *testing.T) {
	start := time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC)
	ev := event("1", model.RepeatNone, start, start.Add(time.Hour))

	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"window contains event", day(2025, 4, 10), day(2025, 4, 11), 1},
		{"window before event", day(2025, 4, 1), day(2025, 4, 10), 0},
		{"window after event", day(2025, 4, 11), day(2025, 4, 12), 0},
		{"window starts mid event", start.Add(30 * time.Minute), day(2025, 4, 11), 1},
		{"window ends at event start", day(2025, 4, 10), start, 0},
		{"window starts at event end", start.Add(time.Hour), day(2025, 4, 11), 0},
		{"inverted window", day(2025, 4, 11), day(2025, 4, 10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs := Expand(ev, tt.from, tt.to)
			require.Len(t, occs, tt.want)
			if tt.want == 1 {
				assert.Equal(t, start, occs[0].Start)
				assert.Equal(t, start.Add(time.Hour), occs[0].End)
				assert.Equal(t, model.ID("1"), occs[0].EventID)
			}
		})
	}
}

func TestExpand_ZeroLengthEvent(t *testing.T) {
	at := time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC)
	ev := event("z", model.RepeatNone, at, at)

	assert.Len(t, Expand(ev, at, at.Add(time.Minute)), 1)
	assert.Len(t, Expand(ev, at.Add(-time.Minute), at), 0)
}

func TestExpand_DailyOverWeek(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := event("d", model.RepeatDaily, start, start.Add(30*time.Minute))

	from := day(2025, 3, 3)
	occs := Expand(ev, from, from.AddDate(0, 0, 7))
	require.Len(t, occs, 7)
	for i, o := range occs {
		want := time.Date(2025, 3, 3+i, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, want, o.Start)
		assert.Equal(t, want.Add(30*time.Minute), o.End)
	}
}

func TestExpand_DailyStartsAtOriginalDate(t *testing.T) {
	start := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	ev := event("d", model.RepeatDaily, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 3, 1), day(2025, 3, 8))
	assert.Equal(t, []time.Time{
		start,
		start.AddDate(0, 0, 1),
		start.AddDate(0, 0, 2),
	}, starts(occs))
}

func TestExpand_Deterministic(t *testing.T) {
	start := time.Date(2024, 1, 31, 18, 45, 12, 345, time.UTC)
	ev := event("m", model.RepeatMonthly, start, start.Add(2*time.Hour))
	from, to := day(2024, 1, 1), day(2026, 1, 1)

	first := Expand(ev, from, to)
	second := Expand(ev, from, to)
	assert.Equal(t, first, second)
	assert.Len(t, first, 24)
}

func TestExpand_DoesNotMutateEvent(t *testing.T) {
	start := time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)
	ev := event("a", model.RepeatAnnually, start, start.Add(time.Hour))
	before := ev

	_ = Expand(ev, day(2024, 1, 1), day(2030, 1, 1))
	assert.Equal(t, before, ev)
}

func TestExpand_Weekly(t *testing.T) {
	start := time.Date(2025, 5, 6, 19, 0, 0, 0, time.UTC) // Tuesday
	ev := event("w", model.RepeatWeekly, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 5, 1), day(2025, 6, 1))
	require.Len(t, occs, 4)
	for _, o := range occs {
		assert.Equal(t, time.Tuesday, o.Start.Weekday())
		assert.Equal(t, 19, o.Start.Hour())
	}
}

func TestExpand_MonthlyClamp(t *testing.T) {
	tests := []struct {
		name string
		year int
		want int
	}{
		{"non-leap year", 2025, 28},
		{"leap year", 2024, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Date(tt.year, 1, 31, 10, 0, 0, 0, time.UTC)
			ev := event("m", model.RepeatMonthly, start, start.Add(time.Hour))

			occs := Expand(ev, day(tt.year, 2, 1), day(tt.year, 3, 1))
			require.Len(t, occs, 1)
			assert.Equal(t, time.Date(tt.year, 2, tt.want, 10, 0, 0, 0, time.UTC), occs[0].Start)
		})
	}
}

func TestExpand_MonthlyClampReturnsToOriginalDay(t *testing.T) {
	start := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	ev := event("m", model.RepeatMonthly, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 1, 1), day(2025, 6, 1))
	var days []int
	for _, o := range occs {
		days = append(days, o.Start.Day())
	}
	assert.Equal(t, []int{31, 28, 31, 30, 31}, days)
}

func TestExpand_MonthlyOrdinaryDay(t *testing.T) {
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	ev := event("m", model.RepeatMonthly, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 1, 1), day(2026, 1, 1))
	require.Len(t, occs, 12)
	for i, o := range occs {
		assert.Equal(t, time.Month(i+1), o.Start.Month())
		assert.Equal(t, 15, o.Start.Day())
	}
}

func TestExpand_AnnuallyFeb29(t *testing.T) {
	start := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)
	ev := event("a", model.RepeatAnnually, start, start.Add(time.Hour))

	occs := Expand(ev, day(2024, 1, 1), day(2029, 1, 1))
	assert.Equal(t, []time.Time{
		time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2027, 2, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC),
	}, starts(occs))
}

func TestExpand_AnnuallyOrdinaryDate(t *testing.T) {
	start := time.Date(2020, 7, 4, 12, 0, 0, 0, time.UTC)
	ev := event("a", model.RepeatAnnually, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 1, 1), day(2026, 1, 1))
	require.Len(t, occs, 1)
	assert.Equal(t, time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC), occs[0].Start)
}

func TestExpand_WallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// DST starts 2025-03-09 in New York.
	start := time.Date(2025, 3, 7, 9, 0, 0, 0, ny)
	ev := event("dst", model.RepeatDaily, start.UTC(), start.Add(time.Hour).UTC())

	x := Expander{Location: ny}
	occs := x.Expand(ev, time.Date(2025, 3, 7, 0, 0, 0, 0, ny), time.Date(2025, 3, 12, 0, 0, 0, 0, ny))
	require.Len(t, occs, 5)
	for _, o := range occs {
		assert.Equal(t, 9, o.Start.Hour(), "start %s", o.Start)
		assert.Equal(t, 10, o.End.Hour(), "end %s", o.End)
	}
	assert.NotEqual(t, occs[0].Start.UTC().Hour(), occs[4].Start.UTC().Hour())
}

func TestExpand_RecurringEndIsClockTime(t *testing.T) {
	// The end date is a later day; only its clock time matters.
	start := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 20, 11, 30, 0, 0, time.UTC)
	ev := event("c", model.RepeatDaily, start, end)

	occs := Expand(ev, day(2025, 8, 3), day(2025, 8, 4))
	require.Len(t, occs, 1)
	assert.Equal(t, time.Date(2025, 8, 3, 11, 30, 0, 0, time.UTC), occs[0].End)
}

func TestExpand_RecurringEndBeforeStartClockEndsNextDay(t *testing.T) {
	start := time.Date(2025, 8, 1, 22, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 1, 1, 0, 0, 0, time.UTC)
	ev := event("n", model.RepeatDaily, start, end)

	occs := Expand(ev, time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC), day(2025, 8, 3))
	require.Len(t, occs, 1)
	assert.Equal(t, time.Date(2025, 8, 2, 22, 0, 0, 0, time.UTC), occs[0].Start)
	assert.Equal(t, time.Date(2025, 8, 3, 1, 0, 0, 0, time.UTC), occs[0].End)
}

func TestExpand_CrossMidnightKeepsDuration(t *testing.T) {
	start := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	ev := event("night", model.RepeatDaily, start, start.Add(4*time.Hour))

	occs := Expand(ev, day(2025, 3, 11), day(2025, 3, 14))
	require.Len(t, occs, 4)
	assert.Equal(t, start, occs[0].Start)
	for _, o := range occs {
		assert.Equal(t, 22, o.Start.Hour())
		assert.Equal(t, 4*time.Hour, o.End.Sub(o.Start))
	}
}

func TestExpand_LongSpanEndBeforeStartClockRunsToMidnight(t *testing.T) {
	start := time.Date(2025, 8, 1, 22, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 5, 1, 0, 0, 0, time.UTC)
	ev := event("l", model.RepeatDaily, start, end)

	occs := Expand(ev, time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC), day(2025, 8, 3))
	require.Len(t, occs, 1)
	assert.Equal(t, day(2025, 8, 3), occs[0].End)
}

func TestExpand_ZeroLengthRecurringStaysZero(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("ping", model.RepeatDaily, start, start)

	occs := Expand(ev, day(2025, 6, 3), day(2025, 6, 4))
	require.Len(t, occs, 1)
	assert.Equal(t, occs[0].Start, occs[0].End)
}

func TestExpand_OccurrenceOverlappingWindowStart(t *testing.T) {
	start := time.Date(2025, 8, 1, 23, 0, 0, 0, time.UTC)
	ev := event("late", model.RepeatDaily, start, start.Add(30*time.Minute))

	// Window opens at 23:15 on Aug 5, inside that day's occurrence.
	from := time.Date(2025, 8, 5, 23, 15, 0, 0, time.UTC)
	occs := Expand(ev, from, from.Add(time.Hour))
	require.Len(t, occs, 1)
	assert.Equal(t, time.Date(2025, 8, 5, 23, 0, 0, 0, time.UTC), occs[0].Start)
}

func TestExpand_SubSecondStartPreserved(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 123456789, time.UTC)
	ev := event("ns", model.RepeatWeekly, start, start.Add(time.Hour))

	occs := Expand(ev, day(2025, 1, 1), day(2025, 1, 20))
	require.Len(t, occs, 3)
	for _, o := range occs {
		assert.Equal(t, 123456789, o.Start.Nanosecond())
	}
}

func TestExpand_Cap(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := event("cap", model.RepeatDaily, start, start.Add(time.Hour))

	x := Expander{MaxOccurrences: 3}
	assert.Len(t, x.Expand(ev, day(2025, 1, 1), day(2025, 2, 1)), 3)
}

func TestExpandAll_Ordering(t *testing.T) {
	a := event("b", model.RepeatDaily, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	b := event("a", model.RepeatNone, time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC))
	c := event("c", model.RepeatNone, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC))

	occs := Expander{}.ExpandAll([]model.Event{a, b, c}, day(2025, 1, 2), day(2025, 1, 3))
	require.Len(t, occs, 3)
	assert.Equal(t, model.ID("c"), occs[0].EventID)
	assert.Equal(t, model.ID("a"), occs[1].EventID, "same start sorts by id")
	assert.Equal(t, model.ID("b"), occs[2].EventID)
}

func TestExpand_InstanceKeysUnique(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := event("k", model.RepeatDaily, start, start.Add(time.Hour))

	seen := map[string]bool{}
	for _, o := range Expand(ev, day(2025, 1, 1), day(2025, 2, 1)) {
		assert.False(t, seen[o.InstanceKey])
		seen[o.InstanceKey] = true
	}
	assert.Len(t, seen, 31)
}
