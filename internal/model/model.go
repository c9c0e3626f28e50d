package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID is an opaque record identifier. Ids are immutable once assigned.
type ID string

// UnmarshalJSON accepts both JSON strings and JSON numbers. Older clients
// generated numeric ids; they are kept as their decimal text.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: expected string or number, got %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Meta carries the identity and lifecycle timestamps shared by every
// stored record. It is embedded in Event and Todo so the JSON layout stays
// flat: {"id": ..., "created": ..., "updated": ...}.
type Meta struct {
	ID      ID        `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Metadata gives generic code (store, reconcile) access to the embedded Meta.
func (m *Meta) Metadata() *Meta {
	return m
}

// Icon identifies a glyph by font family and glyph name. The zero value
// means "no icon".
type Icon struct {
	Font string `json:"font"`
	Name string `json:"name"`
}

// IsZero reports whether no icon is set.
func (i Icon) IsZero() bool {
	return i.Font == "" && i.Name == ""
}

// Occurrence is one concrete instance of an event inside a query window.
type Occurrence struct {
	EventID ID
	Title   string
	Color   string
	Icon    Icon
	Repeat  Repeat

	// InstanceKey identifies a single occurrence of a recurring event,
	// derived from its start instant.
	InstanceKey string

	Start time.Time
	End   time.Time
}
