package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"todocal/internal/model"
)

const productID = "-//todocal//todocal//EN"

var freqByRepeat = map[model.Repeat]string{
	model.RepeatDaily:    "DAILY",
	model.RepeatWeekly:   "WEEKLY",
	model.RepeatMonthly:  "MONTHLY",
	model.RepeatAnnually: "YEARLY",
}

// Encode writes events as a PUBLISH calendar, one VEVENT per event keyed
// by its id. Recurring events carry a plain FREQ rule so that Decode can
// read them back. Times are written at second precision.
func Encode(w io.Writer, events []model.Event) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		ve := cal.AddEvent(string(ev.ID))

		stamp := ev.Updated
		if stamp.IsZero() {
			stamp = time.Now().UTC()
		}
		ve.SetDtStampTime(stamp)
		if !ev.Created.IsZero() {
			ve.SetCreatedTime(ev.Created)
		}
		if !ev.Updated.IsZero() {
			ve.SetModifiedAt(ev.Updated)
		}

		setTime(ve, ical.ComponentPropertyDtStart, ev.Start)
		setTime(ve, ical.ComponentPropertyDtEnd, ev.End)
		ve.SetSummary(ev.Title)

		if freq, ok := freqByRepeat[ev.Repeat]; ok {
			ve.AddProperty(ical.ComponentPropertyRrule, "FREQ="+freq)
		}
		if ev.Color != "" {
			ve.SetProperty(propColor, ev.Color)
		}
		if ev.Icon.Font != "" {
			ve.SetProperty(propIconFont, ev.Icon.Font)
		}
		if ev.Icon.Name != "" {
			ve.SetProperty(propIconName, ev.Icon.Name)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

// setTime writes t with a TZID when it lives in a named zone, so that
// recurrences keep their wall-clock time through a round trip. Everything
// else is written in UTC.
func setTime(ve *ical.VEvent, p ical.ComponentProperty, t time.Time) {
	if name := zoneName(t.Location()); name != "" {
		ve.SetProperty(p, t.Format("20060102T150405"), ical.WithTZID(name))
		return
	}
	ve.SetProperty(p, t.UTC().Format(stampLayout))
}

func zoneName(loc *time.Location) string {
	name := loc.String()
	if loc == time.UTC || name == "" || name == "UTC" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}
