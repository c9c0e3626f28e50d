package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

// stagingSuffix names the key a replacement collection is written to
// before being renamed over the live key.
const stagingSuffix = ".staging"

// Entity is the constraint satisfied by *model.Event and *model.Todo.
type Entity[T any] interface {
	*T
	Metadata() *model.Meta
	Validate() error
}

// Patch merges partial updates into a record (model.EventPatch, model.TodoPatch).
type Patch[T any] interface {
	Apply(*T)
}

// Collection is one named, independently keyed set of records persisted
// as a single JSON array under its name.
//
// Mutations hold the write lock from load to commit, so at most one
// mutation per collection is in flight and every operation observes the
// effects of those that completed before it. Records returned to callers
// are detached copies.
type Collection[T any, PT Entity[T]] struct {
	name    string
	backend Backend
	now     func() time.Time
	newID   func() model.ID

	mu sync.RWMutex
}

// NewCollection binds a collection name to a backend.
func NewCollection[T any, PT Entity[T]](b Backend, name string, opts ...Option) *Collection[T, PT] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T, PT]{
		name:    name,
		backend: b,
		now:     o.now,
		newID:   o.newID,
	}
}

// Name is the collection's storage key.
func (c *Collection[T, PT]) Name() string {
	return c.name
}

// All returns the whole collection. A collection that was never written
// is empty.
func (c *Collection[T, PT]) All(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.load(ctx)
}

// Get returns the record with the given id.
func (c *Collection[T, PT]) Get(ctx context.Context, id model.ID) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	items, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	i := indexOf[T, PT](items, id)
	if i < 0 {
		return zero, &NotFoundError{Collection: c.name, ID: id}
	}
	return items[i], nil
}

// Create appends rec. An empty id is replaced with a fresh one; a caller
// supplied id must not exist yet. Created and Updated are stamped with now.
func (c *Collection[T, PT]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := PT(&rec).Validate(); err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return zero, err
	}

	meta := PT(&rec).Metadata()
	if meta.ID == "" {
		meta.ID = c.uniqueID(items)
	} else if indexOf[T, PT](items, meta.ID) >= 0 {
		return zero, &DuplicateIDError{Collection: c.name, ID: meta.ID}
	}
	now := c.now()
	meta.Created = now
	meta.Updated = now

	if err := c.commit(ctx, append(items, rec)); err != nil {
		return zero, err
	}
	appLog.Debug("record created", "collection", c.name, "id", meta.ID)
	return rec, nil
}

// Update merges patch over the record at id and refreshes Updated. The
// merged record must still validate.
func (c *Collection[T, PT]) Update(ctx context.Context, id model.ID, patch Patch[T]) (T, error) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	i := indexOf[T, PT](items, id)
	if i < 0 {
		return zero, &NotFoundError{Collection: c.name, ID: id}
	}

	rec := items[i]
	prev := *PT(&rec).Metadata()
	patch.Apply(&rec)

	meta := PT(&rec).Metadata()
	meta.ID = prev.ID
	meta.Created = prev.Created
	meta.Updated = laterOf(c.now(), prev.Updated)

	if err := PT(&rec).Validate(); err != nil {
		return zero, err
	}

	items[i] = rec
	if err := c.commit(ctx, items); err != nil {
		return zero, err
	}
	appLog.Debug("record updated", "collection", c.name, "id", id)
	return rec, nil
}

// Delete removes the record at id. Deleting an id that is not present,
// including one deleted earlier, is an error.
func (c *Collection[T, PT]) Delete(ctx context.Context, id model.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf[T, PT](items, id)
	if i < 0 {
		return &NotFoundError{Collection: c.name, ID: id}
	}

	items = append(items[:i], items[i+1:]...)
	if err := c.commit(ctx, items); err != nil {
		return err
	}
	appLog.Debug("record deleted", "collection", c.name, "id", id)
	return nil
}

// ReplaceAll swaps the entire collection for items. Every record must
// carry an id, ids must be unique and records must validate; otherwise
// nothing is written. On any failure the previous collection stays
// visible.
func (c *Collection[T, PT]) ReplaceAll(ctx context.Context, items []T) error {
	if err := c.checkAll(items); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := append([]T(nil), items...)
	if err := c.commit(ctx, snapshot); err != nil {
		return err
	}
	appLog.Debug("collection replaced", "collection", c.name, "count", len(items))
	return nil
}

// Modify loads the collection, hands it to fn and commits the slice fn
// returns, holding the write lock throughout. When fn reports write as
// false nothing is committed and its slice is returned as is. The
// replacement is checked like ReplaceAll input.
func (c *Collection[T, PT]) Modify(ctx context.Context, fn func(items []T) (next []T, write bool, err error)) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	next, write, err := fn(items)
	if err != nil {
		return nil, err
	}
	if !write {
		return next, nil
	}
	if err := c.checkAll(next); err != nil {
		return nil, err
	}

	snapshot := append([]T(nil), next...)
	if err := c.commit(ctx, snapshot); err != nil {
		return nil, err
	}
	appLog.Debug("collection modified", "collection", c.name, "count", len(next))
	return next, nil
}

func (c *Collection[T, PT]) checkAll(items []T) error {
	seen := make(map[model.ID]struct{}, len(items))
	for i := range items {
		rec := PT(&items[i])
		meta := rec.Metadata()
		if meta.ID == "" {
			return &model.ValidationError{Field: "id", Message: "must not be empty"}
		}
		if _, dup := seen[meta.ID]; dup {
			return &DuplicateIDError{Collection: c.name, ID: meta.ID}
		}
		seen[meta.ID] = struct{}{}
		if meta.Updated.Before(meta.Created) {
			return &model.ValidationError{Field: "updated", Message: "must not be before created", ID: meta.ID}
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// load reads and decodes the collection. Callers hold c.mu.
func (c *Collection[T, PT]) load(ctx context.Context) ([]T, error) {
	data, ok, err := c.backend.Get(ctx, c.name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.name, ctx.Err())
		}
		return nil, ioErr("get", c.name, err)
	}
	if !ok || len(data) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, ioErr("decode", c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// commit stages items under the staging key and renames it over the live
// key. The live key is only touched by the rename, so an error or a
// cancelled ctx before that point leaves the old collection in place.
// Callers hold c.mu.
func (c *Collection[T, PT]) commit(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ioErr("encode", c.name, err)
	}

	staging := c.name + stagingSuffix
	if err := c.backend.Set(ctx, staging, data); err != nil {
		c.discard(staging)
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", c.name, ctx.Err())
		}
		return ioErr("set", staging, err)
	}
	if err := ctx.Err(); err != nil {
		c.discard(staging)
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if err := c.backend.Rename(ctx, staging, c.name); err != nil {
		c.discard(staging)
		return ioErr("rename", c.name, err)
	}
	return nil
}

// discard removes a staged value. It runs on a fresh context because the
// caller's may already be cancelled.
func (c *Collection[T, PT]) discard(staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.backend.Delete(ctx, staging); err != nil {
		appLog.Error("failed to discard staged collection", err, "key", staging)
	}
}

func (c *Collection[T, PT]) uniqueID(items []T) model.ID {
	for {
		id := c.newID()
		if indexOf[T, PT](items, id) < 0 {
			return id
		}
	}
}

func indexOf[T any, PT Entity[T]](items []T, id model.ID) int {
	for i := range items {
		if PT(&items[i]).Metadata().ID == id {
			return i
		}
	}
	return -1
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}

type options struct {
	now   func() time.Time
	newID func() model.ID
}

// Option customizes collections created by NewCollection and New.
type Option func(*options)

func defaultOptions() options {
	return options{
		now: func() time.Time { return time.Now().UTC() },
		newID: func() model.ID {
			return model.ID(uuid.Must(uuid.NewV7()).String())
		},
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator overrides how fresh ids are generated.
func WithIDGenerator(gen func() model.ID) Option {
	return func(o *options) {
		o.newID = gen
	}
}
