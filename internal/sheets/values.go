// Package sheets republishes a dataset to a named Google spreadsheet and
// stamps the last-updated marker.
package sheets

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// TimeLayout is the textual form of date-time cells in the spreadsheet.
const TimeLayout = "2006-01-02 15:04:05"

// ToValues converts ds into cells the Sheets API accepts: the header row
// followed by one row per record. Times become text, numbers become integers
// (NaN becomes "", values outside the int64 range keep their textual form),
// booleans stay booleans, nil becomes "" and composite values become their
// textual form.
func ToValues(ds records.Dataset) [][]any {
	out := make([][]any, 0, ds.Len()+1)
	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	out = append(out, header)

	for _, row := range ds.Rows {
		cells := make([]any, len(ds.Columns))
		for c := range ds.Columns {
			var v any
			if c < len(row) {
				v = row[c]
			}
			cells[c] = toCell(v)
		}
		out = append(out, cells)
	}
	return out
}

func toCell(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return val
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		if val < -(1<<63) || val >= 1<<63 {
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
		return int64(val)
	case time.Time:
		return formatTime(val)
	case []float64:
		return records.FormatCoordinates(val)
	default:
		return fmt.Sprint(val)
	}
}

// formatTime renders time-of-day cells, which carry no calendar date, as
// "15:04:05".
func formatTime(t time.Time) string {
	if t.Year() == 0 || (t.Year() == 1899 && t.Month() == time.December) {
		return t.Format(time.TimeOnly)
	}
	return t.Format(TimeLayout)
}
