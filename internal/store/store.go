package store

import (
	"context"
	"fmt"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

// Collection names double as backend keys.
//
// googleEvents holds events imported from the linked Google calendar; it
// is replaced wholesale on every import and never exported.
const (
	CollectionEvents       = "events"
	CollectionTodos        = "todos"
	CollectionGoogleEvents = "googleEvents"
)

type (
	EventCollection = Collection[model.Event, *model.Event]
	TodoCollection  = Collection[model.Todo, *model.Todo]
)

// Store owns the durable representation of all collections. It is
// constructed once by the application and passed to the components that
// need it.
type Store struct {
	backend Backend

	Events       *EventCollection
	Todos        *TodoCollection
	GoogleEvents *EventCollection
}

// New wires the standard collections to b. The Store takes ownership of b
// and closes it in Close.
func New(b Backend, opts ...Option) *Store {
	return &Store{
		backend:      b,
		Events:       NewCollection[model.Event](b, CollectionEvents, opts...),
		Todos:        NewCollection[model.Todo](b, CollectionTodos, opts...),
		GoogleEvents: NewCollection[model.Event](b, CollectionGoogleEvents, opts...),
	}
}

// Drivers accepted by Options.Driver.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Options selects and locates the backend.
type Options struct {
	// Driver is one of DriverFile, DriverSQLite or DriverMemory.
	Driver string
	// Path is a directory for the file driver and a database file for sqlite.
	Path string
}

// Open constructs the configured backend and returns a Store on top of it.
func Open(ctx context.Context, o Options, opts ...Option) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		b   Backend
		err error
	)
	switch o.Driver {
	case DriverFile, "":
		b, err = NewFileBackend(o.Path)
	case DriverSQLite:
		b, err = OpenSQLite(o.Path)
	case DriverMemory:
		b = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown store driver %q", o.Driver)
	}
	if err != nil {
		return nil, err
	}

	appLog.Info("store opened", "driver", o.Driver, "path", o.Path)
	return New(b, opts...), nil
}

// Backend exposes the underlying key-value store.
func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) Close() error {
	return s.backend.Close()
}
