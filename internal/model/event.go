package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is a calendar entry. For non-recurring events End must not be
// before Start. For recurring events Start anchors the series and End only
// contributes its clock time: each occurrence ends at that time of day.
type Event struct {
	Meta

	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Repeat Repeat    `json:"repeat"`
	Color  string    `json:"color"`
	Icon   Icon      `json:"icon"`
}

// NewEvent builds a validated event without id or timestamps; the store
// assigns both on create.
func NewEvent(title string, start, end time.Time, repeat Repeat, color string, icon Icon) (Event, error) {
	ev := Event{
		Title:  title,
		Start:  start,
		End:    end,
		Repeat: repeat,
		Color:  color,
		Icon:   icon,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// UnmarshalJSON defaults a missing repeat attribute to None.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	p := plain{Repeat: RepeatNone}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Event(p)
	return nil
}

// Validate checks the construction contract of an event.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty", ID: e.ID}
	}
	if !e.Repeat.Valid() {
		return &ValidationError{Field: "repeat", Message: "unknown rule " + string(e.Repeat), ID: e.ID}
	}
	if e.Repeat == RepeatNone && e.Start.After(e.End) {
		return &ValidationError{Field: "end", Message: "must not be before start", ID: e.ID}
	}
	return nil
}

// Duration is End-Start for one-off events.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// EventPatch holds the fields of a partial update; nil fields keep the
// current value.
type EventPatch struct {
	Title  *string
	Start  *time.Time
	End    *time.Time
	Repeat *Repeat
	Color  *string
	Icon   *Icon
}

// Apply merges the set fields over e. Identity and timestamps are not
// patchable.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.End != nil {
		e.End = *p.End
	}
	if p.Repeat != nil {
		e.Repeat = *p.Repeat
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Icon != nil {
		e.Icon = *p.Icon
	}
}

// FullEventPatch returns a patch that overwrites every attribute with
// those of e, which is how an edit form saves.
func FullEventPatch(e Event) EventPatch {
	return EventPatch{
		Title:  &e.Title,
		Start:  &e.Start,
		End:    &e.End,
		Repeat: &e.Repeat,
		Color:  &e.Color,
		Icon:   &e.Icon,
	}
}
