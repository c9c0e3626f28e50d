package reconcile

import (
	"context"
	"fmt"

	"todocal/internal/gateway"
	appLog "todocal/internal/log"
	"todocal/internal/model"
	"todocal/internal/store"
)

// Gateway is the remote account API as seen by the Syncer.
// *gateway.Client implements it.
type Gateway interface {
	Import(ctx context.Context) (gateway.Snapshot, error)
	Export(ctx context.Context, snap gateway.Snapshot) error
	CalendarList(ctx context.Context) ([]model.Event, error)
}

// ImportResult reports a completed import per collection.
type ImportResult struct {
	Events MergeResult `json:"events"`
	Todos  MergeResult `json:"todos"`
}

// Syncer runs the cloud import/export flows against one Store.
type Syncer struct {
	store *store.Store
	gw    Gateway
}

func NewSyncer(s *store.Store, gw Gateway) *Syncer {
	return &Syncer{store: s, gw: gw}
}

// Import fetches the remote snapshot and merges it into the local events
// and todos. A gateway failure stops the import before anything is
// written, and both snapshots are validated before either collection is
// touched.
//
// Each collection commits on its own. If the todos commit fails after
// the events merge was written, the events stay imported and the returned
// result carries their counts alongside the error. Repeating the import
// is safe: the events merge is then a no-op.
func (s *Syncer) Import(ctx context.Context) (ImportResult, error) {
	snap, err := s.gw.Import(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}

	if err := validateRemote[model.Event](snap.Events); err != nil {
		return ImportResult{}, fmt.Errorf("import events: %w", err)
	}
	if err := validateRemote[model.Todo](snap.Todos); err != nil {
		return ImportResult{}, fmt.Errorf("import todos: %w", err)
	}

	var res ImportResult
	if _, res.Events, err = MergeFromRemote(ctx, s.store.Events, snap.Events); err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	if _, res.Todos, err = MergeFromRemote(ctx, s.store.Todos, snap.Todos); err != nil {
		return res, fmt.Errorf("import: %w", err)
	}

	appLog.Info("import completed",
		"events_added", res.Events.Added,
		"events_updated", res.Events.Updated,
		"todos_added", res.Todos.Added,
		"todos_updated", res.Todos.Updated,
	)
	return res, nil
}

// Export pushes the full local events and todos. The remote decides how
// to merge them; local state is never modified.
func (s *Syncer) Export(ctx context.Context) (gateway.Snapshot, error) {
	events, err := PrepareForExport(ctx, s.store.Events)
	if err != nil {
		return gateway.Snapshot{}, err
	}
	todos, err := PrepareForExport(ctx, s.store.Todos)
	if err != nil {
		return gateway.Snapshot{}, err
	}

	snap := gateway.Snapshot{Events: events, Todos: todos}
	if err := s.gw.Export(ctx, snap); err != nil {
		return gateway.Snapshot{}, fmt.Errorf("export: %w", err)
	}

	appLog.Info("export completed", "events", len(events), "todos", len(todos))
	return snap, nil
}

// ImportGoogle replaces the googleEvents collection with the linked
// calendar's current events.
func (s *Syncer) ImportGoogle(ctx context.Context) ([]model.Event, error) {
	events, err := s.gw.CalendarList(ctx)
	if err != nil {
		return nil, fmt.Errorf("google import: %w", err)
	}
	events = dedupeLatest(events)
	if err := s.store.GoogleEvents.ReplaceAll(ctx, events); err != nil {
		return nil, fmt.Errorf("google import: %w", err)
	}
	appLog.Info("google import completed", "events", len(events))
	return events, nil
}

// dedupeLatest drops repeated ids, keeping the latest copy in first-seen
// position.
func dedupeLatest(events []model.Event) []model.Event {
	merged, _ := Merge[model.Event](nil, events)
	return merged
}
