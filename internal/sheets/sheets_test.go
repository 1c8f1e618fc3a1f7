package sheets_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/waste-tracker/internal/clock/system"
	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/sheets"
	"github.com/JakeFAU/waste-tracker/internal/sheets/memory"
	blobmemory "github.com/JakeFAU/waste-tracker/internal/storage/memory"
	"github.com/JakeFAU/waste-tracker/internal/tabular"
)

var now = time.Date(2024, 6, 15, 9, 30, 5, 0, time.Local)

func sampleDataset() records.Dataset {
	return records.Dataset{
		Columns: []string{"when", "count", "ratio", "flag", "coords", "empty", "hour"},
		Rows: []records.Row{{
			time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			float64(42),
			math.NaN(),
			true,
			[]float64{45.1, 5.7},
			nil,
			time.Date(0, 1, 1, 10, 30, 0, 0, time.UTC),
		}},
	}
}

func TestToValues(t *testing.T) {
	values := sheets.ToValues(sampleDataset())
	require.Len(t, values, 2)
	assert.Equal(t, []any{"when", "count", "ratio", "flag", "coords", "empty", "hour"}, values[0])

	row := values[1]
	assert.Equal(t, "2024-01-02 03:04:05", row[0])
	assert.Equal(t, int64(42), row[1])
	assert.Equal(t, "", row[2])
	assert.Equal(t, true, row[3])
	assert.Equal(t, "[45.1, 5.7]", row[4])
	assert.Equal(t, "", row[5])
	assert.Equal(t, "10:30:00", row[6])

	assert.IsType(t, "", row[0])
	assert.IsType(t, int64(0), row[1])
	assert.IsType(t, false, row[3])
}

func TestToValuesStructuredAndOversizedValues(t *testing.T) {
	ds := records.Dataset{
		Columns: []string{"meta", "tags", "huge", "tiny"},
		Rows: []records.Row{{
			map[string]any{"site": "A"},
			[]any{"x", 1},
			1e19,
			-1e300,
		}},
	}
	row := sheets.ToValues(ds)[1]
	for i, cell := range row {
		assert.IsType(t, "", cell, "column %d", i)
	}
	assert.Equal(t, "map[site:A]", row[0])
	assert.Equal(t, "10000000000000000000", row[2])
}

func TestToValuesUndeclaredDateColumnBecomesText(t *testing.T) {
	raw, err := tabular.Encode(records.Dataset{
		Columns: []string{"Site", "Date de demande"},
		Rows:    []records.Row{{"KFC", time.Date(2024, 2, 20, 14, 15, 0, 0, time.UTC)}},
	})
	require.NoError(t, err)
	ds, err := tabular.Decode(raw, records.Schema{})
	require.NoError(t, err)

	row := sheets.ToValues(ds)[1]
	assert.Equal(t, "2024-02-20 14:15:00", row[1])
}

func TestToValuesShortRow(t *testing.T) {
	ds := records.Dataset{Columns: []string{"a", "b"}, Rows: []records.Row{{"x"}}}
	assert.Equal(t, []any{"x", ""}, sheets.ToValues(ds)[1])
}

func newPublisher(t *testing.T, client *memory.Client, mode sheets.ReplaceMode) (*sheets.Publisher, *blobmemory.BlobStore) {
	t.Helper()
	store := blobmemory.NewBlobStore()
	pub, err := sheets.NewPublisher(client, store, system.Fixed(now), sheets.Config{
		Name:      "veolia_export",
		ShareWith: "ops@example.com",
		Mode:      mode,
		MarkerKey: "last_update.txt",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return pub, store
}

func TestPublishDeleteFirst(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	oldID, err := client.CreateSpreadsheet(ctx, "veolia_export")
	require.NoError(t, err)
	_, err = client.CreateSpreadsheet(ctx, "unrelated")
	require.NoError(t, err)

	pub, store := newPublisher(t, client, "")
	res, err := pub.Publish(ctx, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, "15-06-2024 09:30:05", res.Marker)

	assert.Equal(t, []string{"create", "create", "list", "delete", "create", "share", "write"}, client.Calls())

	files := client.Spreadsheets()
	require.Len(t, files, 2)
	assert.NotEqual(t, oldID, res.SpreadsheetID)
	published := files[1]
	assert.Equal(t, "veolia_export", published.Name)
	assert.Equal(t, []string{"ops@example.com"}, published.Writers)
	assert.Len(t, published.Values, 2)

	marker, err := store.GetObject(ctx, "last_update.txt")
	require.NoError(t, err)
	assert.Equal(t, "15-06-2024 09:30:05", string(marker))
}

func TestPublishCreateThenSwap(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	_, err := client.CreateSpreadsheet(ctx, "veolia_export")
	require.NoError(t, err)

	pub, _ := newPublisher(t, client, sheets.CreateThenSwap)
	res, err := pub.Publish(ctx, sampleDataset())
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "list", "create", "share", "write", "delete", "rename"}, client.Calls())
	files := client.Spreadsheets()
	require.Len(t, files, 1)
	assert.Equal(t, res.SpreadsheetID, files[0].ID)
	assert.Equal(t, "veolia_export", files[0].Name)
}

func TestPublishCreateThenSwapKeepsOldOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	oldID, err := client.CreateSpreadsheet(ctx, "veolia_export")
	require.NoError(t, err)
	client.FailOn("write", errors.New("quota exceeded"))

	pub, store := newPublisher(t, client, sheets.CreateThenSwap)
	_, err = pub.Publish(ctx, sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write values")

	files := client.Spreadsheets()
	require.Len(t, files, 1, "temporary spreadsheet is removed")
	assert.Equal(t, oldID, files[0].ID)

	_, err = store.GetObject(ctx, "last_update.txt")
	assert.ErrorIs(t, err, records.ErrNotFound, "marker is only written on success")
}

func TestPublishCreateThenSwapRemovesTemporaryOnRenameFailure(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	_, err := client.CreateSpreadsheet(ctx, "veolia_export")
	require.NoError(t, err)
	client.FailOn("rename", errors.New("backend error"))

	pub, store := newPublisher(t, client, sheets.CreateThenSwap)
	_, err = pub.Publish(ctx, sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename spreadsheet")

	assert.Equal(t, []string{"create", "list", "create", "share", "write", "delete", "rename", "delete"}, client.Calls())
	for _, f := range client.Spreadsheets() {
		assert.NotContains(t, f.Name, ".tmp-")
	}

	_, err = store.GetObject(ctx, "last_update.txt")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestPublishListFailure(t *testing.T) {
	client := memory.New()
	client.FailOn("list", errors.New("unauthorized"))

	pub, _ := newPublisher(t, client, sheets.DeleteFirst)
	_, err := pub.Publish(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list spreadsheets")
	assert.Equal(t, []string{"list"}, client.Calls())
}

func TestNewPublisherValidation(t *testing.T) {
	store := blobmemory.NewBlobStore()
	clock := system.Fixed(now)
	cfg := sheets.Config{Name: "x", MarkerKey: "m"}

	_, err := sheets.NewPublisher(nil, store, clock, cfg, nil)
	assert.Error(t, err)
	_, err = sheets.NewPublisher(memory.New(), nil, clock, cfg, nil)
	assert.Error(t, err)
	_, err = sheets.NewPublisher(memory.New(), store, clock, sheets.Config{MarkerKey: "m"}, nil)
	assert.Error(t, err)
	_, err = sheets.NewPublisher(memory.New(), store, clock, sheets.Config{Name: "x", MarkerKey: "m", Mode: "atomic"}, nil)
	assert.Error(t, err)
	_, err = sheets.NewPublisher(memory.New(), store, clock, cfg, nil)
	assert.NoError(t, err)
}
