package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch reports a missing or unexpected column.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ParseError reports a cell that could not be interpreted.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse row %d column %q value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Kind tells the codec how to decode a column.
type Kind int

// Column kinds.
const (
	KindInferred Kind = iota
	KindText
	KindTime
)

// Schema declares the columns a dataset must carry and how to decode them.
type Schema struct {
	Required []string
	Kinds    map[string]Kind
}

// ExportSchema describes the raw portal export.
func ExportSchema() Schema {
	return Schema{
		Required: []string{
			ColumnSite,
			ColumnStreet,
			ColumnPostalCode,
			ColumnCity,
			ColumnServiceType,
			ColumnCompletionDate,
			ColumnCompletionTime,
			ColumnRealizationStatus,
			ColumnBillingStatus,
			ColumnMaterial,
		},
		Kinds: map[string]Kind{
			ColumnSite:           KindText,
			ColumnStreet:         KindText,
			ColumnPostalCode:     KindText,
			ColumnCity:           KindText,
			ColumnCompletionDate: KindTime,
			ColumnCompletionTime: KindTime,
		},
	}
}

// DashboardSchema describes the geocoded export consumed by the dashboard.
func DashboardSchema() Schema {
	s := ExportSchema()
	s.Required = append(s.Required, ColumnCoordinates)
	s.Kinds[ColumnCoordinates] = KindText
	return s
}

// KindOf returns the declared kind of a column.
func (s Schema) KindOf(column string) Kind {
	return s.Kinds[column]
}

// Validate fails fast when a required column is absent.
func (s Schema) Validate(columns []string) error {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	var missing []string
	for _, req := range s.Required {
		if _, ok := present[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns %s: %w", strings.Join(missing, ", "), ErrSchemaMismatch)
	}
	return nil
}
