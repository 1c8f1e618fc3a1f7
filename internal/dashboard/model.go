// Package dashboard derives filtered map and statistics views from the
// geocoded export. A Model is built once and never modified; each request
// computes a fresh View.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/waste-tracker/internal/records"
	"github.com/JakeFAU/waste-tracker/internal/tabular"
)

// UnknownMaterial labels rows without a material.
const UnknownMaterial = "Inconnu"

// MapSettings positions the map over France.
type MapSettings struct {
	Center    [2]float64    `json:"center"`
	Zoom      int           `json:"zoom"`
	MaxBounds [2][2]float64 `json:"max_bounds"`
}

// DefaultMap is the initial map viewport.
var DefaultMap = MapSettings{
	Center:    [2]float64{46.603354, 1.888334},
	Zoom:      6,
	MaxBounds: [2][2]float64{{41, -5.266007}, {51, 9.662499}},
}

// Filter narrows a view. Empty fields match every row.
type Filter struct {
	ServiceType       string `json:"service_type,omitempty"`
	RealizationStatus string `json:"realization_status,omitempty"`
	BillingStatus     string `json:"billing_status,omitempty"`
}

// Marker is one map pin.
type Marker struct {
	Site string  `json:"site"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// MaterialCount is one bar of the material distribution.
type MaterialCount struct {
	Material string `json:"material"`
	Count    int    `json:"count"`
}

// View is the dashboard content for one filter.
type View struct {
	Filter     Filter          `json:"filter"`
	Markers    []Marker        `json:"markers"`
	Materials  []MaterialCount `json:"materials"`
	Rows       int             `json:"rows"`
	MeanHour   int             `json:"mean_hour"`
	LastUpdate string          `json:"last_update"`
	Map        MapSettings     `json:"map"`
}

// Options lists the distinct values offered by each filter control.
type Options struct {
	ServiceTypes        []string `json:"service_types"`
	RealizationStatuses []string `json:"realization_statuses"`
	BillingStatuses     []string `json:"billing_statuses"`
}

type columns struct {
	site, serviceType, realization, billing, material, hour, coords int
}

// Model holds the loaded export.
type Model struct {
	ds         records.Dataset
	cols       columns
	lastUpdate string
	options    Options
}

// NewModel indexes ds, which must follow the dashboard schema.
func NewModel(ds records.Dataset, lastUpdate string) (*Model, error) {
	if err := records.DashboardSchema().Validate(ds.Columns); err != nil {
		return nil, err
	}
	index := func(name string) int {
		i, _ := ds.Index(name)
		return i
	}
	m := &Model{
		ds: ds.Clone(),
		cols: columns{
			site:        index(records.ColumnSite),
			serviceType: index(records.ColumnServiceType),
			realization: index(records.ColumnRealizationStatus),
			billing:     index(records.ColumnBillingStatus),
			material:    index(records.ColumnMaterial),
			hour:        index(records.ColumnCompletionTime),
			coords:      index(records.ColumnCoordinates),
		},
		lastUpdate: strings.TrimSpace(lastUpdate),
	}
	m.options = Options{
		ServiceTypes:        m.distinct(m.cols.serviceType),
		RealizationStatuses: m.distinct(m.cols.realization),
		BillingStatuses:     m.distinct(m.cols.billing),
	}
	return m, nil
}

// Load reads the export and the last-updated marker from store. A missing
// marker leaves the last-update text empty.
func Load(ctx context.Context, store records.BlobStore, exportKey, markerKey string) (*Model, error) {
	raw, err := store.GetObject(ctx, exportKey)
	if err != nil {
		return nil, fmt.Errorf("load export: %w", err)
	}
	ds, err := tabular.Decode(raw, records.DashboardSchema())
	if err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	marker, err := store.GetObject(ctx, markerKey)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, fmt.Errorf("load marker: %w", err)
	}
	return NewModel(ds, string(marker))
}

// Options returns the filter choices, in order of first appearance.
func (m *Model) Options() Options {
	return m.options
}

// LastUpdate returns the marker text.
func (m *Model) LastUpdate() string {
	return m.lastUpdate
}

// Len returns the number of loaded rows.
func (m *Model) Len() int {
	return m.ds.Len()
}

// View computes the dashboard for f. A filter matching nothing yields no
// markers, no materials, zero rows and a zero mean hour.
func (m *Model) View(f Filter) View {
	view := View{
		Filter:     f,
		Markers:    []Marker{},
		Materials:  []MaterialCount{},
		LastUpdate: m.lastUpdate,
		Map:        DefaultMap,
	}
	counts := map[string]int{}
	hourSum, hourN := 0, 0
	for i := range m.ds.Rows {
		if !m.matches(i, f) {
			continue
		}
		view.Rows++

		if pair, ok := records.ParseCoordinates(m.ds.Cell(i, m.cols.coords)); ok {
			view.Markers = append(view.Markers, Marker{
				Site: records.Text(m.ds.Cell(i, m.cols.site)),
				Lat:  pair[0],
				Lon:  pair[1],
			})
		}

		material := UnknownMaterial
		if cell := m.ds.Cell(i, m.cols.material); !records.IsMissing(cell) {
			material = records.Text(cell)
		}
		counts[material]++

		if t, ok := m.ds.Cell(i, m.cols.hour).(time.Time); ok {
			hourSum += t.Hour()
			hourN++
		}
	}

	for material, n := range counts {
		view.Materials = append(view.Materials, MaterialCount{Material: material, Count: n})
	}
	sort.Slice(view.Materials, func(i, j int) bool {
		a, b := view.Materials[i], view.Materials[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Material < b.Material
	})
	if hourN > 0 {
		view.MeanHour = hourSum / hourN
	}
	return view
}

func (m *Model) matches(i int, f Filter) bool {
	if f.ServiceType != "" && records.Text(m.ds.Cell(i, m.cols.serviceType)) != f.ServiceType {
		return false
	}
	if f.RealizationStatus != "" && records.Text(m.ds.Cell(i, m.cols.realization)) != f.RealizationStatus {
		return false
	}
	if f.BillingStatus != "" && records.Text(m.ds.Cell(i, m.cols.billing)) != f.BillingStatus {
		return false
	}
	return true
}

func (m *Model) distinct(col int) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for i := range m.ds.Rows {
		cell := m.ds.Cell(i, col)
		if records.IsMissing(cell) {
			continue
		}
		v := records.Text(cell)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
