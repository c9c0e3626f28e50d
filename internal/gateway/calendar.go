package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

// googleEvent is the subset of a Google Calendar event the account API
// relays from /calendar/list.
type googleEvent struct {
	ID      string     `json:"id"`
	Summary string     `json:"summary"`
	ColorID string     `json:"colorId"`
	Start   googleTime `json:"start"`
	End     googleTime `json:"end"`
	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
	Status  string     `json:"status"`
}

// googleTime holds either a timed instant or an all-day date.
type googleTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	TimeZone string `json:"timeZone"`
}

func (g googleTime) resolve() (time.Time, error) {
	if g.DateTime != "" {
		return time.Parse(time.RFC3339, g.DateTime)
	}
	if g.Date != "" {
		loc := time.UTC
		if g.TimeZone != "" {
			if l, err := time.LoadLocation(g.TimeZone); err == nil {
				loc = l
			}
		}
		return time.ParseInLocation("2006-01-02", g.Date, loc)
	}
	return time.Time{}, fmt.Errorf("neither dateTime nor date set")
}

// googleColors maps Google's event colorId palette to hex.
var googleColors = map[string]string{
	"1": "#7986cb", "2": "#33b679", "3": "#8e24aa", "4": "#e67c73",
	"5": "#f6bf26", "6": "#f4511e", "7": "#039be5", "8": "#616161",
	"9": "#3f51b5", "10": "#0b8043", "11": "#d50000",
}

const defaultGoogleColor = "#039be5"

// CalendarList fetches the linked Google calendar's events and converts
// them to one-off events. Cancelled or malformed entries are skipped.
func (c *Client) CalendarList(ctx context.Context) ([]model.Event, error) {
	const op = "calendar"

	body, err := c.do(ctx, op, http.MethodGet, "/calendar/list", nil)
	if err != nil {
		return nil, err
	}

	var raw []googleEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &RemoteUnavailableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	events := make([]model.Event, 0, len(raw))
	for _, ge := range raw {
		ev, err := ge.toEvent()
		if err != nil {
			appLog.Warn("gateway calendar: skipping event", "id", ge.ID, "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("gateway calendar success", "received", len(raw), "kept", len(events))
	return events, nil
}

func (ge googleEvent) toEvent() (model.Event, error) {
	if ge.ID == "" {
		return model.Event{}, fmt.Errorf("missing id")
	}
	if strings.EqualFold(ge.Status, "cancelled") {
		return model.Event{}, fmt.Errorf("cancelled")
	}
	start, err := ge.Start.resolve()
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := ge.End.resolve()
	if err != nil {
		end = start
	}

	title := strings.TrimSpace(ge.Summary)
	if title == "" {
		title = "(no title)"
	}
	color, ok := googleColors[ge.ColorID]
	if !ok {
		color = defaultGoogleColor
	}

	updated := ge.Updated
	if updated.Before(ge.Created) {
		updated = ge.Created
	}

	ev := model.Event{
		Meta:   model.Meta{ID: model.ID(ge.ID), Created: ge.Created, Updated: updated},
		Title:  title,
		Start:  start,
		End:    end,
		Repeat: model.RepeatNone,
		Color:  color,
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}
