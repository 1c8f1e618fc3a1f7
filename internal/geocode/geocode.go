// Package geocode resolves collection addresses to coordinates using a
// curated lookup table.
package geocode

import (
	"fmt"
	"os"

	"github.com/titanous/json5"

	"github.com/JakeFAU/waste-tracker/internal/records"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Pair returns the coordinates as a two-element slice, the cell form stored
// in the Coordonnées column.
func (c Coordinates) Pair() []float64 {
	return []float64{c.Lat, c.Lon}
}

// Table maps an address key to its coordinates. It is read-only once loaded.
type Table map[string]Coordinates

// Lookup returns the coordinates for key.
func (t Table) Lookup(key string) (Coordinates, bool) {
	c, ok := t[key]
	return c, ok
}

// Parse decodes a JSON or JSON5 object of the form {"address": [lat, lon]}.
func Parse(data []byte) (Table, error) {
	var raw map[string][]float64
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode geocode table: %w", err)
	}
	table := make(Table, len(raw))
	for key, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("geocode entry %q has %d values, want 2", key, len(pair))
		}
		table[key] = Coordinates{Lat: pair[0], Lon: pair[1]}
	}
	return table, nil
}

// Load reads and parses the table at path.
func Load(path string) (Table, error) {
	// #nosec G304 -- path comes from configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geocode table: %w", err)
	}
	return Parse(data)
}

// AddressKey builds the lookup key "site, street, postal city".
func AddressKey(site, street, postal, city string) string {
	return site + ", " + street + ", " + postal + " " + city
}

// Join appends the coordinate column to ds. Rows whose address is absent from
// the table get a nil coordinate; their count is returned. Row count and order
// are preserved.
func Join(ds records.Dataset, table Table) (records.Dataset, int, error) {
	cols := make([]int, 0, 4)
	for _, name := range []string{records.ColumnSite, records.ColumnStreet, records.ColumnPostalCode, records.ColumnCity} {
		idx, err := ds.Index(name)
		if err != nil {
			return records.Dataset{}, 0, err
		}
		cols = append(cols, idx)
	}

	values := make([]any, ds.Len())
	unresolved := 0
	for i := range ds.Rows {
		key := AddressKey(
			records.Text(ds.Cell(i, cols[0])),
			records.Text(ds.Cell(i, cols[1])),
			records.Text(ds.Cell(i, cols[2])),
			records.Text(ds.Cell(i, cols[3])),
		)
		if c, ok := table.Lookup(key); ok {
			values[i] = c.Pair()
			continue
		}
		unresolved++
	}

	out, err := ds.WithColumn(records.ColumnCoordinates, values)
	if err != nil {
		return records.Dataset{}, 0, err
	}
	return out, unresolved, nil
}
