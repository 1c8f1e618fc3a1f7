// Package snapshot decides whether a freshly fetched export differs from the
// last published one and persists the new baseline.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/tabular"
)

// Result is the outcome of a comparison.
type Result struct {
	// Changed is true when publication is needed.
	Changed bool
	// FirstRun is true when no snapshot existed yet.
	FirstRun bool
}

// Differ compares datasets against the snapshot stored under a fixed key.
type Differ struct {
	store  records.BlobStore
	key    string
	schema records.Schema
}

// NewDiffer returns a Differ reading and writing key in store. The stored
// snapshot is decoded with schema.
func NewDiffer(store records.BlobStore, key string, schema records.Schema) (*Differ, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("snapshot key is required")
	}
	return &Differ{store: store, key: key, schema: schema}, nil
}

// Compare loads the snapshot and reports whether fresh differs from it. A
// missing snapshot counts as changed.
func (d *Differ) Compare(ctx context.Context, fresh records.Dataset) (Result, error) {
	raw, err := d.store.GetObject(ctx, d.key)
	if errors.Is(err, records.ErrNotFound) {
		return Result{Changed: true, FirstRun: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load snapshot: %w", err)
	}
	previous, err := tabular.Decode(raw, d.schema)
	if err != nil {
		return Result{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return Result{Changed: !Equal(previous, fresh)}, nil
}

// Commit replaces the snapshot with raw in a single write.
func (d *Differ) Commit(ctx context.Context, raw []byte) error {
	if _, err := d.store.PutObject(ctx, d.key, tabular.ContentType, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Equal reports full structural equality: same columns, rows, order and
// values, with NaN equal to NaN.
func Equal(a, b records.Dataset) bool {
	return cmp.Equal(a, b, cmpopts.EquateNaNs(), cmpopts.EquateEmpty())
}
