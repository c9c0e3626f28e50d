package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todocal/internal/model"
)

// stepClock returns base, base+1s, base+2s, ...
type stepClock struct {
	mu   sync.Mutex
	next time.Time
}

func newStepClock(base time.Time) *stepClock {
	return &stepClock{next: base}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(time.Second)
	return t
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend()
	s := New(b, opts...)
	t.Cleanup(func() { s.Close() })
	return s, b
}

func sampleEvent(title string) model.Event {
	start := time.Date(2025, 6, 1, 9, 0, 0, 250, time.UTC)
	return model.Event{
		Title:  title,
		Start:  start,
		End:    start.Add(90 * time.Minute),
		Repeat: model.RepeatNone,
		Color:  "#ff8800",
		Icon:   model.Icon{Font: "Ionicons", Name: "calendar"},
	}
}

func TestAll_EmptyOnFirstUse(t *testing.T) {
	s, _ := newTestStore(t)

	events, err := s.Events.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)

	todos, err := s.Todos.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestCreate_GetRoundTrip(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(newStepClock(base).Now))
	ctx := context.Background()

	in := sampleEvent("Dentist")
	created, err := s.Events.Create(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, base, created.Created)
	assert.Equal(t, base, created.Updated)

	got, err := s.Events.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Apart from the stamped meta, the stored record equals the input.
	got.Meta = model.Meta{}
	assert.Equal(t, in, got)
}

func TestCreate_UniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seen := make(map[model.ID]bool)
	for i := 0; i < 50; i++ {
		ev, err := s.Events.Create(ctx, sampleEvent(fmt.Sprintf("event %d", i)))
		require.NoError(t, err)
		assert.False(t, seen[ev.ID], "duplicate id %s", ev.ID)
		seen[ev.ID] = true
	}

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

func TestCreate_RetriesCollidingGeneratedID(t *testing.T) {
	ids := []model.ID{"a", "a", "b"}
	var i int
	gen := func() model.ID {
		id := ids[i]
		i++
		return id
	}
	s, _ := newTestStore(t, WithIDGenerator(gen))
	ctx := context.Background()

	first, err := s.Todos.Create(ctx, model.Todo{Title: "one"})
	require.NoError(t, err)
	second, err := s.Todos.Create(ctx, model.Todo{Title: "two"})
	require.NoError(t, err)

	assert.Equal(t, model.ID("a"), first.ID)
	assert.Equal(t, model.ID("b"), second.ID)
}

func TestCreate_DuplicateID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ev := sampleEvent("A")
	ev.ID = "fixed"
	_, err := s.Events.Create(ctx, ev)
	require.NoError(t, err)

	_, err = s.Events.Create(ctx, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))

	var dup *DuplicateIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, CollectionEvents, dup.Collection)
	assert.Equal(t, model.ID("fixed"), dup.ID)
}

func TestCreate_Validation(t *testing.T) {
	s, b := newTestStore(t)

	_, err := s.Events.Create(context.Background(), model.Event{Repeat: model.RepeatNone})
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Empty(t, b.Keys(), "nothing should be written")
}

func TestUpdate(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(newStepClock(base).Now))
	ctx := context.Background()

	created, err := s.Events.Create(ctx, sampleEvent("Draft"))
	require.NoError(t, err)

	title := "Final"
	updated, err := s.Events.Update(ctx, created.ID, model.EventPatch{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, created.Color, updated.Color)
	assert.Equal(t, created.Created, updated.Created)
	assert.True(t, updated.Updated.After(created.Updated))

	got, err := s.Events.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpdate_NeverMovesUpdatedBackwards(t *testing.T) {
	clock := newStepClock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	s, _ := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	created, err := s.Todos.Create(ctx, model.Todo{Title: "future"})
	require.NoError(t, err)

	// Wall clock jumps back.
	clock.mu.Lock()
	clock.next = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.mu.Unlock()

	title := "still future"
	updated, err := s.Todos.Update(ctx, created.ID, model.TodoPatch{Title: &title})
	require.NoError(t, err)
	assert.False(t, updated.Updated.Before(created.Updated))
}

func TestUpdate_Errors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	title := "x"
	_, err := s.Events.Update(ctx, "missing", model.EventPatch{Title: &title})
	assert.True(t, errors.Is(err, ErrNotFound))

	created, err := s.Events.Create(ctx, sampleEvent("A"))
	require.NoError(t, err)

	empty := ""
	_, err = s.Events.Update(ctx, created.ID, model.EventPatch{Title: &empty})
	assert.True(t, errors.Is(err, model.ErrValidation))

	got, err := s.Events.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Events.Create(ctx, sampleEvent("A"))
	require.NoError(t, err)
	b, err := s.Events.Create(ctx, sampleEvent("B"))
	require.NoError(t, err)

	require.NoError(t, s.Events.Delete(ctx, a.ID))

	_, err = s.Events.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.Events.Delete(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "second delete must fail")

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestCollections_AreIndependent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ev := sampleEvent("shared id")
	ev.ID = "1"
	_, err := s.Events.Create(ctx, ev)
	require.NoError(t, err)

	_, err = s.Todos.Create(ctx, model.Todo{Meta: model.Meta{ID: "1"}, Title: "shared id"})
	require.NoError(t, err)

	_, err = s.Todos.Get(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, s.Events.Delete(ctx, "1"))
	_, err = s.Todos.Get(ctx, "1")
	assert.NoError(t, err)
}

func TestReplaceAll(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	_, err := s.Events.Create(ctx, sampleEvent("old"))
	require.NoError(t, err)

	x := sampleEvent("X")
	x.ID = "x"
	y := sampleEvent("Y")
	y.ID = "y"
	require.NoError(t, s.Events.ReplaceAll(ctx, []model.Event{x, y}))

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "X", all[0].Title)
	assert.Equal(t, "Y", all[1].Title)
	assert.ElementsMatch(t, []string{CollectionEvents}, b.Keys())
}

func TestReplaceAll_RejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok := sampleEvent("ok")
	ok.ID = "1"
	require.NoError(t, s.Events.ReplaceAll(ctx, []model.Event{ok}))

	noID := sampleEvent("no id")
	err := s.Events.ReplaceAll(ctx, []model.Event{noID})
	assert.True(t, errors.Is(err, model.ErrValidation))

	err = s.Events.ReplaceAll(ctx, []model.Event{ok, ok})
	assert.True(t, errors.Is(err, ErrDuplicateID))

	backwards := sampleEvent("backwards")
	backwards.ID = "2"
	backwards.Created = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	backwards.Updated = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	err = s.Events.ReplaceAll(ctx, []model.Event{backwards})
	assert.True(t, errors.Is(err, model.ErrValidation))

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.ID("1"), all[0].ID)
}

// faultyBackend fails selected operations on keys with a given suffix.
type faultyBackend struct {
	*MemoryBackend
	failSetSuffix    string
	failRenameSuffix string
	failGet          bool
}

func (f *faultyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("disk unreadable")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func (f *faultyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.failSetSuffix != "" && strings.HasSuffix(key, f.failSetSuffix) {
		// Simulate a torn write: half the bytes land, then the medium fails.
		_ = f.MemoryBackend.Set(ctx, key, value[:len(value)/2])
		return errors.New("disk full")
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

func (f *faultyBackend) Rename(ctx context.Context, from, to string) error {
	if f.failRenameSuffix != "" && strings.HasSuffix(from, f.failRenameSuffix) {
		return errors.New("rename interrupted")
	}
	return f.MemoryBackend.Rename(ctx, from, to)
}

func TestReplaceAll_FailureLeavesPreviousCollection(t *testing.T) {
	tests := []struct {
		name    string
		backend *faultyBackend
	}{
		{name: "staging write fails", backend: &faultyBackend{failSetSuffix: stagingSuffix}},
		{name: "commit rename fails", backend: &faultyBackend{failRenameSuffix: stagingSuffix}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tt.backend.MemoryBackend = NewMemoryBackend()

			// Seed through a healthy store sharing the same memory.
			seed := New(tt.backend.MemoryBackend)
			a := sampleEvent("A")
			a.ID = "a"
			b := sampleEvent("B")
			b.ID = "b"
			require.NoError(t, seed.Events.ReplaceAll(ctx, []model.Event{a, b}))
			before, err := seed.Events.All(ctx)
			require.NoError(t, err)

			s := New(tt.backend)
			c := sampleEvent("C")
			c.ID = "c"
			err = s.Events.ReplaceAll(ctx, []model.Event{c})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStorageIO))

			after, err := s.Events.All(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.ElementsMatch(t, []string{CollectionEvents}, tt.backend.Keys(), "staging key must be discarded")
		})
	}
}

func TestReplaceAll_CancelledBeforeCommit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := sampleEvent("A")
	a.ID = "a"
	require.NoError(t, s.Events.ReplaceAll(ctx, []model.Event{a}))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	b := sampleEvent("B")
	b.ID = "b"
	err := s.Events.ReplaceAll(cctx, []model.Event{b})
	assert.True(t, errors.Is(err, context.Canceled))

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.ID("a"), all[0].ID)
}

func TestStorageIOError_Propagates(t *testing.T) {
	s := New(&faultyBackend{MemoryBackend: NewMemoryBackend(), failGet: true})

	_, err := s.Events.All(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageIO))

	var ioe *StorageIOError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, "get", ioe.Op)
	assert.Equal(t, CollectionEvents, ioe.Key)
}

func TestCorruptCollectionIsStorageIOError(t *testing.T) {
	s, b := newTestStore(t)
	require.NoError(t, b.Set(context.Background(), CollectionTodos, []byte("{not json")))

	_, err := s.Todos.All(context.Background())
	assert.True(t, errors.Is(err, ErrStorageIO))
}

func TestConcurrentCreates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Todos.Create(ctx, model.Todo{Title: fmt.Sprintf("todo %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := s.Todos.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestModify(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	_, err := s.Events.Create(ctx, sampleEvent("first"))
	require.NoError(t, err)

	got, err := s.Events.Modify(ctx, func(items []model.Event) ([]model.Event, bool, error) {
		extra := sampleEvent("second")
		extra.ID = "second"
		return append(items, extra), true, nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	all, err := s.Events.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, all)
	assert.ElementsMatch(t, []string{CollectionEvents}, b.Keys())
}

func TestModify_NoWriteOrRejectedResult(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	_, err := s.Events.Create(ctx, sampleEvent("first"))
	require.NoError(t, err)
	before, _, err := b.Get(ctx, CollectionEvents)
	require.NoError(t, err)

	got, err := s.Events.Modify(ctx, func(items []model.Event) ([]model.Event, bool, error) {
		items[0].Title = "not saved"
		return items, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "not saved", got[0].Title)

	_, err = s.Events.Modify(ctx, func(items []model.Event) ([]model.Event, bool, error) {
		return append(items, sampleEvent("no id")), true, nil
	})
	assert.True(t, errors.Is(err, model.ErrValidation))

	boom := errors.New("boom")
	_, err = s.Events.Modify(ctx, func(items []model.Event) ([]model.Event, bool, error) {
		return nil, true, boom
	})
	assert.ErrorIs(t, err, boom)

	after, _, err := b.Get(ctx, CollectionEvents)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestModify_SerializesWithCreates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Todos.Create(ctx, model.Todo{Title: fmt.Sprintf("created %d", i)})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.Todos.Modify(ctx, func(items []model.Todo) ([]model.Todo, bool, error) {
				return append(items, model.Todo{Meta: model.Meta{ID: model.ID(fmt.Sprintf("m%d", i))}, Title: "modified"}), true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := s.Todos.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
