package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Text renders a cell the way it reads in the export: integral numbers lose
// their decimal part and nil becomes the empty string.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case time.Time:
		return val.Format(time.DateTime)
	case []float64:
		return FormatCoordinates(val)
	default:
		return fmt.Sprint(val)
	}
}

// IsMissing reports whether a cell counts as empty.
func IsMissing(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(val)
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// FormatCoordinates renders a coordinate pair as a list literal, e.g.
// "[45.18, 5.72]". Integral values keep a trailing ".0".
func FormatCoordinates(pair []float64) string {
	parts := make([]string, len(pair))
	for i, v := range pair {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseCoordinates parses the list literal written by FormatCoordinates.
// Cells that already hold a pair are returned as-is.
func ParseCoordinates(v any) ([]float64, bool) {
	switch val := v.(type) {
	case []float64:
		if len(val) != 2 {
			return nil, false
		}
		return val, true
	case string:
		raw := strings.TrimSpace(val)
		if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
			return nil, false
		}
		parts := strings.Split(strings.Trim(raw, "[]"), ",")
		if len(parts) != 2 {
			return nil, false
		}
		pair := make([]float64, 2)
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, false
			}
			pair[i] = f
		}
		return pair, true
	}
	return nil, false
}
