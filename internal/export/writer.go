// Package export writes the geocoded dataset consumed by the dashboard.
package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/JakeFAU/waste-tracker/internal/geocode"
	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/tabular"
)

// Config controls the export.
type Config struct {
	// Key is the blob key the export overwrites.
	Key string
	// DropUnresolved removes rows without coordinates instead of keeping them
	// with an empty coordinate cell.
	DropUnresolved bool
}

// Result summarizes a write.
type Result struct {
	URI        string
	Rows       int
	Unresolved int
	Dropped    int
}

// Writer joins datasets with the geocode table and persists them.
type Writer struct {
	store records.BlobStore
	table geocode.Table
	cfg   Config
}

// NewWriter returns a Writer storing into store under cfg.Key.
func NewWriter(store records.BlobStore, table geocode.Table, cfg Config) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("export key is required")
	}
	if table == nil {
		table = geocode.Table{}
	}
	return &Writer{store: store, table: table, cfg: cfg}, nil
}

// Build appends the coordinate column and applies the unresolved-row policy
// without persisting anything.
func (w *Writer) Build(ds records.Dataset) (records.Dataset, Result, error) {
	joined, unresolved, err := geocode.Join(ds, w.table)
	if err != nil {
		return records.Dataset{}, Result{}, fmt.Errorf("join coordinates: %w", err)
	}
	res := Result{Unresolved: unresolved}
	if w.cfg.DropUnresolved && unresolved > 0 {
		col, err := joined.Index(records.ColumnCoordinates)
		if err != nil {
			return records.Dataset{}, Result{}, err
		}
		before := joined.Len()
		joined = joined.Filter(func(row records.Row) bool { return row[col] != nil })
		res.Dropped = before - joined.Len()
	}
	res.Rows = joined.Len()
	return joined, res, nil
}

// Write builds the export and overwrites the stored file in full.
func (w *Writer) Write(ctx context.Context, ds records.Dataset) (Result, error) {
	joined, res, err := w.Build(ds)
	if err != nil {
		return Result{}, err
	}
	raw, err := tabular.Encode(joined)
	if err != nil {
		return Result{}, fmt.Errorf("encode export: %w", err)
	}
	uri, err := w.store.PutObject(ctx, w.cfg.Key, tabular.ContentType, bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("write export: %w", err)
	}
	res.URI = uri
	return res, nil
}
