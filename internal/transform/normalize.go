// Package transform holds the row-level rewrites of the processing stage:
// literal correction rules and the current-year filter.
package transform

import (
	"strings"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// Rule rewrites Field to Replacement on every row whose value contains Match,
// compared case-insensitively and literally.
type Rule struct {
	Field       string `mapstructure:"field"`
	Match       string `mapstructure:"match"`
	Replacement string `mapstructure:"replacement"`
}

// DefaultRules are the corrections for known data-entry variants in the
// portal export.
func DefaultRules() []Rule {
	return []Rule{
		{Field: records.ColumnSite, Match: "Clinique Belledonne", Replacement: "ELSAN – CLINIQUE BELLEDONNE"},
		{Field: records.ColumnStreet, Match: "83 av Gabriel Peri", Replacement: "83 avenue Gabriel Peri"},
		{Field: records.ColumnSite, Match: "TAKE A WASTE/KFC AUBAGNE*", Replacement: "TAKE A WASTE/KFC AUBAGNE"},
		{Field: records.ColumnStreet, Match: "*77 RUE DU DOCTEUR ESCAT*", Replacement: "77 RUE DU DOCTEUR ESCAT"},
	}
}

// Normalize applies rules in order and returns a new dataset. A rule naming a
// column that ds does not carry is a configuration error. Non-string cells
// never match.
func Normalize(ds records.Dataset, rules []Rule) (records.Dataset, error) {
	out := ds.Clone()
	for _, rule := range rules {
		col, err := out.Index(rule.Field)
		if err != nil {
			return records.Dataset{}, err
		}
		needle := strings.ToLower(rule.Match)
		for _, row := range out.Rows {
			if col >= len(row) {
				continue
			}
			value, ok := row[col].(string)
			if !ok {
				continue
			}
			if strings.Contains(strings.ToLower(value), needle) {
				row[col] = rule.Replacement
			}
		}
	}
	return out, nil
}
