package reconcile

import (
	"context"
	"fmt"

	appLog "todocal/internal/log"
	"todocal/internal/model"
	"todocal/internal/store"
)

// MergeResult counts what a merge did, relative to the local collection.
type MergeResult struct {
	// Added is the number of remote-only records adopted.
	Added int `json:"added"`
	// Updated is the number of shared ids where the remote copy won.
	Updated int `json:"updated"`
	// Kept is the number of local records left as they were.
	Kept int `json:"kept"`
}

// Changed reports whether the merge altered the local collection.
func (r MergeResult) Changed() bool {
	return r.Added > 0 || r.Updated > 0
}

// Merge unions local and remote by id. For ids on both sides the copy
// with the later Updated wins and ties go to local. Local-only records are
// kept: an id missing from remote is never deleted.
//
// The result lists local records in their original order (with winners
// substituted in place) followed by remote-only records in remote order.
// Duplicate ids within remote collapse to their latest copy.
func Merge[T any, PT store.Entity[T]](local, remote []T) ([]T, MergeResult) {
	var res MergeResult

	latest := make(map[model.ID]T, len(remote))
	order := make([]model.ID, 0, len(remote))
	for _, r := range remote {
		id := PT(&r).Metadata().ID
		prev, seen := latest[id]
		if !seen {
			order = append(order, id)
			latest[id] = r
			continue
		}
		if PT(&r).Metadata().Updated.After(PT(&prev).Metadata().Updated) {
			latest[id] = r
		}
	}

	out := make([]T, 0, len(local)+len(remote))
	inLocal := make(map[model.ID]struct{}, len(local))
	for _, l := range local {
		id := PT(&l).Metadata().ID
		inLocal[id] = struct{}{}

		r, shared := latest[id]
		if shared && PT(&r).Metadata().Updated.After(PT(&l).Metadata().Updated) {
			out = append(out, r)
			res.Updated++
			continue
		}
		out = append(out, l)
		res.Kept++
	}

	for _, id := range order {
		if _, ok := inLocal[id]; ok {
			continue
		}
		out = append(out, latest[id])
		res.Added++
	}

	return out, res
}

// MergeFromRemote merges remote into the collection in one locked
// load-merge-commit step, so local mutations are either seen by the merge
// or applied after it. Remote records are validated first; a single
// invalid record aborts the merge before anything is written.
func MergeFromRemote[T any, PT store.Entity[T]](ctx context.Context, c *store.Collection[T, PT], remote []T) ([]T, MergeResult, error) {
	if err := validateRemote[T, PT](remote); err != nil {
		return nil, MergeResult{}, fmt.Errorf("merge %s: %w", c.Name(), err)
	}

	var res MergeResult
	merged, err := c.Modify(ctx, func(local []T) ([]T, bool, error) {
		var out []T
		out, res = Merge[T, PT](local, remote)
		return out, res.Changed(), nil
	})
	if err != nil {
		return nil, MergeResult{}, fmt.Errorf("merge %s: %w", c.Name(), err)
	}

	if !res.Changed() {
		appLog.Debug("merge: nothing to apply", "collection", c.Name(), "kept", res.Kept)
		return merged, res, nil
	}
	appLog.Info("merge applied", "collection", c.Name(), "added", res.Added, "updated", res.Updated, "kept", res.Kept)
	return merged, res, nil
}

// PrepareForExport returns a detached copy of the whole collection for
// transmission. It never writes.
func PrepareForExport[T any, PT store.Entity[T]](ctx context.Context, c *store.Collection[T, PT]) ([]T, error) {
	items, err := c.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", c.Name(), err)
	}
	return items, nil
}

func validateRemote[T any, PT store.Entity[T]](remote []T) error {
	for i := range remote {
		rec := PT(&remote[i])
		meta := rec.Metadata()
		if meta.ID == "" {
			return &model.ValidationError{Field: "id", Message: fmt.Sprintf("remote record %d has no id", i)}
		}
		if meta.Updated.Before(meta.Created) {
			return &model.ValidationError{Field: "updated", Message: "must not be before created", ID: meta.ID}
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}
