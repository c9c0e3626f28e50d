package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

// Extended properties carrying the fields iCalendar has no slot for.
const (
	propColor    ical.ComponentProperty = "X-TODOCAL-COLOR"
	propIconFont ical.ComponentProperty = "X-TODOCAL-ICON-FONT"
	propIconName ical.ComponentProperty = "X-TODOCAL-ICON-NAME"

	// RFC 7986 COLOR, used when the extended property is absent.
	propRFCColor ical.ComponentProperty = "COLOR"
)

const stampLayout = "20060102T150405Z"

// Decode parses an iCalendar payload into events. VEVENTs that cannot be
// represented (no UID, no DTSTART, a recurrence rule other than a plain
// daily/weekly/monthly/yearly one) are logged and skipped. The returned
// events are validated.
func Decode(r io.Reader) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, err := decodeEvent(ve)
		if err != nil {
			appLog.Warn("ics: skipping vevent", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics decode completed", "vevents", len(cal.Events()), "events", len(events))
	return events, nil
}

func decodeEvent(ve *ical.VEvent) (model.Event, error) {
	var ev model.Event

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return ev, errors.New("missing UID")
	}
	ev.ID = model.ID(uid)
	ev.Title = propValue(ve, ical.ComponentPropertySummary)

	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = ve.GetAllDayStartAt(); err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		if end, err = ve.GetAllDayEndAt(); err != nil {
			end = start
		}
	}
	ev.Start, ev.End = start, end

	ev.Repeat = model.RepeatNone
	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rep, err := repeatFromRRule(raw)
		if err != nil {
			return ev, err
		}
		ev.Repeat = rep
	}

	ev.Color = propValue(ve, propColor)
	if ev.Color == "" {
		ev.Color = propValue(ve, propRFCColor)
	}
	ev.Icon = model.Icon{
		Font: propValue(ve, propIconFont),
		Name: propValue(ve, propIconName),
	}

	ev.Created = parseStamp(propValue(ve, ical.ComponentPropertyCreated))
	ev.Updated = parseStamp(propValue(ve, ical.ComponentPropertyLastModified))
	if ev.Updated.IsZero() {
		ev.Updated = parseStamp(propValue(ve, ical.ComponentPropertyDtstamp))
	}
	if ev.Updated.Before(ev.Created) {
		ev.Updated = ev.Created
	}

	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// repeatFromRRule maps an RRULE onto the four supported rules. Only an
// interval of one without COUNT or UNTIL is representable.
func repeatFromRRule(raw string) (model.Repeat, error) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return "", fmt.Errorf("RRULE %q: %w", raw, err)
	}
	if opt.Interval > 1 || opt.Count > 0 || !opt.Until.IsZero() {
		return "", fmt.Errorf("RRULE %q: only plain FREQ rules are supported", raw)
	}
	switch opt.Freq {
	case rrule.DAILY:
		return model.RepeatDaily, nil
	case rrule.WEEKLY:
		return model.RepeatWeekly, nil
	case rrule.MONTHLY:
		return model.RepeatMonthly, nil
	case rrule.YEARLY:
		return model.RepeatAnnually, nil
	}
	return "", fmt.Errorf("RRULE %q: unsupported frequency", raw)
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func parseStamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(stampLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
