package transform

import (
	"fmt"
	"time"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// DateRange reports the earliest and latest retained dates. Both are zero when
// no row was retained.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// FilterYear keeps the rows whose date in column falls on or after January 1
// of now's year, preserving order. Any cell that is not a time is a
// ParseError.
func FilterYear(ds records.Dataset, column string, now time.Time) (records.Dataset, DateRange, error) {
	col, err := ds.Index(column)
	if err != nil {
		return records.Dataset{}, DateRange{}, err
	}

	out := records.Dataset{Columns: append([]string(nil), ds.Columns...)}
	var span DateRange
	for i, row := range ds.Rows {
		cell := ds.Cell(i, col)
		date, ok := cell.(time.Time)
		if !ok {
			return records.Dataset{}, DateRange{}, &records.ParseError{
				Row:    i + 2,
				Column: column,
				Value:  records.Text(cell),
				Err:    fmt.Errorf("not a date"),
			}
		}
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, date.Location())
		if date.Before(start) {
			continue
		}
		out.Rows = append(out.Rows, row)
		if span.Min.IsZero() || date.Before(span.Min) {
			span.Min = date
		}
		if span.Max.IsZero() || date.After(span.Max) {
			span.Max = date
		}
	}
	return out, span, nil
}
