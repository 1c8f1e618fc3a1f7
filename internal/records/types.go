package records

import (
	"fmt"
	"time"
)

// Column names of the portal export. The coordinate column is only present
// in the dashboard-facing export.
const (
	ColumnSite              = "Lieu de collecte"
	ColumnStreet            = "Rue du lieu de collecte"
	ColumnPostalCode        = "Code postal du lieu de collecte"
	ColumnCity              = "Ville du lieu de collecte"
	ColumnServiceType       = "Type de prestation"
	ColumnCompletionDate    = "Date de réalisation"
	ColumnCompletionTime    = "Heure de réalisation"
	ColumnRealizationStatus = "Etat de réalisation"
	ColumnBillingStatus     = "Etat de facturation"
	ColumnMaterial          = "Matière"
	ColumnCoordinates       = "Coordonnées"
)

// Row is one positional record. Cells hold nil, string, float64, int64, bool,
// time.Time, []float64 or map[string]any.
type Row []any

// Dataset is an ordered sequence of rows sharing one column schema.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Index returns the position of the named column.
func (d Dataset) Index(name string) (int, error) {
	for i, c := range d.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q: %w", name, ErrSchemaMismatch)
}

// Cell returns the value at row i for the column at position col, or nil
// when the row is shorter than the header.
func (d Dataset) Cell(i, col int) any {
	row := d.Rows[i]
	if col < 0 || col >= len(row) {
		return nil
	}
	return row[col]
}

// Clone copies the column list and every row so the result can be modified
// without touching d.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Row, len(d.Rows)),
	}
	for i, row := range d.Rows {
		out.Rows[i] = append(Row(nil), row...)
	}
	return out
}

// WithColumn returns a copy of d with an extra column appended. values must
// have one entry per row.
func (d Dataset) WithColumn(name string, values []any) (Dataset, error) {
	if len(values) != len(d.Rows) {
		return Dataset{}, fmt.Errorf("column %q has %d values for %d rows", name, len(values), len(d.Rows))
	}
	out := Dataset{
		Columns: append(append([]string(nil), d.Columns...), name),
		Rows:    make([]Row, len(d.Rows)),
	}
	for i, row := range d.Rows {
		padded := make(Row, len(d.Columns), len(d.Columns)+1)
		copy(padded, row)
		out.Rows[i] = append(padded, values[i])
	}
	return out, nil
}

// Filter returns the rows for which keep reports true, preserving order.
func (d Dataset) Filter(keep func(row Row) bool) Dataset {
	out := Dataset{Columns: append([]string(nil), d.Columns...)}
	for _, row := range d.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// RunOutcome classifies how a pipeline run ended.
type RunOutcome string

// Run outcomes persisted in run history.
const (
	RunUnchanged RunOutcome = "unchanged"
	RunPublished RunOutcome = "published"
	RunFailed    RunOutcome = "failed"
)

// RunRecord is persisted once per pipeline run.
type RunRecord struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	InputHash     string     `json:"input_hash"`
	RowsFetched   int        `json:"rows_fetched"`
	RowsRetained  int        `json:"rows_retained"`
	Unresolved    int        `json:"unresolved"`
	Outcome       RunOutcome `json:"outcome"`
	SpreadsheetID string     `json:"spreadsheet_id,omitempty"`
	ErrorText     string     `json:"error_text,omitempty"`
}
