// Package tabular encodes and decodes datasets as xlsx workbooks using
// excelize. Only the first worksheet is read; the first row is the header.
package tabular

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// ContentType is the MIME type of encoded workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const defaultSheet = "Sheet1"

// textDateLayouts are tried, in order, for date cells stored as text.
var textDateLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	time.DateOnly,
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	time.TimeOnly,
	"15:04",
}

// ReadFile loads a workbook from disk and returns the decoded dataset along
// with the raw bytes.
func ReadFile(path string, schema records.Schema) (records.Dataset, []byte, error) {
	// #nosec G304 -- path comes from configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		return records.Dataset{}, nil, fmt.Errorf("read %s: %w", path, err)
	}
	ds, err := Decode(raw, schema)
	if err != nil {
		return records.Dataset{}, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ds, raw, nil
}

// Decode parses workbook bytes into a dataset, validating the header against
// schema before touching any row.
func Decode(data []byte, schema records.Schema) (records.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return records.Dataset{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return records.Dataset{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return records.Dataset{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return records.Dataset{}, fmt.Errorf("header row missing: %w", records.ErrSchemaMismatch)
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
	}
	if err := schema.Validate(header); err != nil {
		return records.Dataset{}, err
	}

	ds := records.Dataset{Columns: header}
	for r, raw := range rows[1:] {
		if blankRow(raw) {
			continue
		}
		row := make(records.Row, len(header))
		for c := range header {
			if c >= len(raw) || raw[c] == "" {
				continue
			}
			cellName, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return records.Dataset{}, fmt.Errorf("cell name: %w", err)
			}
			value, err := decodeCell(f, sheet, cellName, raw[c], schema.KindOf(header[c]))
			if err != nil {
				return records.Dataset{}, &records.ParseError{Row: r + 2, Column: header[c], Value: raw[c], Err: err}
			}
			row[c] = value
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func decodeCell(f *excelize.File, sheet, cell, raw string, kind records.Kind) (any, error) {
	switch kind {
	case records.KindText:
		return raw, nil
	case records.KindTime:
		return parseTime(raw)
	}
	cellType, err := f.GetCellType(sheet, cell)
	if err != nil {
		return nil, fmt.Errorf("cell type: %w", err)
	}
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		dated, err := isDateCell(f, sheet, cell)
		if err != nil {
			return nil, err
		}
		if !dated {
			return n, nil
		}
		t, err := excelize.ExcelDateToTime(n, false)
		if err != nil {
			return nil, fmt.Errorf("excel serial: %w", err)
		}
		return t, nil
	default:
		return raw, nil
	}
}

// isDateCell reports whether the cell's number format renders a date or a
// time of day.
func isDateCell(f *excelize.File, sheet, cell string) (bool, error) {
	idx, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, fmt.Errorf("cell style: %w", err)
	}
	if idx == 0 {
		return false, nil
	}
	style, err := f.GetStyle(idx)
	if err != nil {
		return false, fmt.Errorf("style %d: %w", idx, err)
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt), nil
	}
	switch {
	case style.NumFmt >= 14 && style.NumFmt <= 22, style.NumFmt >= 45 && style.NumFmt <= 47:
		return true, nil
	}
	return false, nil
}

// isDateFormat looks for date or time tokens in a custom format code,
// ignoring quoted literals, escaped characters and bracketed sections such as
// colors and locales.
func isDateFormat(code string) bool {
	var quoted, bracket, escaped bool
	for _, r := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracket:
			bracket = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracket = true
		case r == 'y', r == 'd', r == 'h', r == 's', r == 'm':
			return true
		}
	}
	return false
}

func parseTime(raw string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("excel serial: %w", err)
		}
		return t, nil
	}
	trimmed := strings.TrimSpace(raw)
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func blankRow(raw []string) bool {
	for _, v := range raw {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Encode writes the dataset to a single-sheet workbook. Coordinate pairs and
// structured values are stored as text; NaN and nil become empty cells.
func Encode(ds records.Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook

	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range ds.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		values := make([]any, len(ds.Columns))
		for c := range ds.Columns {
			if c < len(row) {
				values[c] = encodeCell(row[c])
			}
		}
		if err := f.SetSheetRow(defaultSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeCell(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return nil
		}
		return val
	case []float64:
		return records.FormatCoordinates(val)
	case map[string]any, []any:
		return fmt.Sprint(val)
	default:
		return val
	}
}
