package model

import (
	"strings"
	"time"
)

// Todo is a single-timestamp task. It follows the same id and timestamp
// discipline as Event.
type Todo struct {
	Meta

	Title string    `json:"title"`
	Date  time.Time `json:"date"`
	Color string    `json:"color"`
	Icon  Icon      `json:"icon"`
}

func NewTodo(title string, date time.Time, color string, icon Icon) (Todo, error) {
	td := Todo{Title: title, Date: date, Color: color, Icon: icon}
	if err := td.Validate(); err != nil {
		return Todo{}, err
	}
	return td, nil
}

func (t Todo) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty", ID: t.ID}
	}
	return nil
}

type TodoPatch struct {
	Title *string
	Date  *time.Time
	Color *string
	Icon  *Icon
}

func (p TodoPatch) Apply(t *Todo) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Icon != nil {
		t.Icon = *p.Icon
	}
}
