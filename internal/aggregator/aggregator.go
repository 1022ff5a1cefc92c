// Package aggregator computes the dashboard views from a loaded dataset.
// Every view is a pure function of (dataset, filter, options): there is no
// hidden state and the same inputs always produce the same output. Views
// never fail on sparse or empty data; they return empty-state results.
package aggregator

import (
	"sort"
	"strings"

	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// Options tunes presentation-level behavior of the views.
type Options struct {
	// RegionOrderThreshold: regional totals with more distinct regions than
	// this use the canonical geographic order.
	RegionOrderThreshold int
	// LeaderboardSize is the number of divisions kept.
	LeaderboardSize int
	// TrendWindow is the number of years kept on either side of the selected year.
	TrendWindow int
}

// DefaultOptions returns the standard dashboard options.
func DefaultOptions() Options {
	return Options{
		RegionOrderThreshold: 10,
		LeaderboardSize:      15,
		TrendWindow:          2,
	}
}

// GroupKey is a string representation of a grouping tuple.
type GroupKey = string

func groupKey(parts ...string) GroupKey {
	return strings.Join(parts, "|")
}

// group accumulates a sum and a distinct-school count per key, remembering
// first-seen key order.
type group struct {
	Keys    []string
	Total   int64
	Rows    int
	schools map[string]struct{}
}

func (g *group) Schools() int {
	return len(g.schools)
}

type grouper struct {
	order  []GroupKey
	groups map[GroupKey]*group
}

func newGrouper() *grouper {
	return &grouper{groups: make(map[GroupKey]*group)}
}

func (gr *grouper) add(schoolID string, value int64, keys ...string) {
	k := groupKey(keys...)
	g, ok := gr.groups[k]
	if !ok {
		g = &group{Keys: keys, schools: make(map[string]struct{})}
		gr.groups[k] = g
		gr.order = append(gr.order, k)
	}
	g.Total += value
	g.Rows++
	g.schools[schoolID] = struct{}{}
}

// ordered returns groups in first-seen order.
func (gr *grouper) ordered() []*group {
	out := make([]*group, len(gr.order))
	for i, k := range gr.order {
		out[i] = gr.groups[k]
	}
	return out
}

// selectedRows applies the region filter and pairs each row with its
// selected total.
type selectedRow struct {
	Row   *loader.Row
	Total int64
}

func selectRows(ds *loader.Dataset, f resolver.Filter, regionFiltered bool) []selectedRow {
	if ds.Empty() {
		return nil
	}
	cols := f.Select(ds.GradeColumns).Columns()
	out := make([]selectedRow, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		if regionFiltered && !f.MatchesRegion(r.School.Region) {
			continue
		}
		out = append(out, selectedRow{Row: r, Total: r.Sum(cols)})
	}
	return out
}

// orderByCatalog orders values by their position in catalog; values not in
// the catalog follow in first-seen order.
func orderByCatalog(values []string, catalog []string) []string {
	rank := make(map[string]int, len(catalog))
	for i, c := range catalog {
		rank[c] = i
	}
	out := append([]string(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}

func percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// regionOf is the grouping key for a row's region; unregistered schools
// have none and drop out of region groupings.
func regionOf(r *loader.Row) string {
	return r.School.Region
}

// knownRegion reports whether a region value can be grouped on.
func knownRegion(region string) bool {
	return knownValue(region)
}

// knownValue reports whether a registry value can be a grouping key.
// Blank cells and the N/A placeholder cannot.
func knownValue(v string) bool {
	return v != "" && v != types.NA
}
