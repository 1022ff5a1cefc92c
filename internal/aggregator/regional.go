package aggregator

import (
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// RegionTotal is one bar of the regional comparison.
type RegionTotal struct {
	Region  string `json:"region"`
	GeoName string `json:"geo_name"`
	Total   int64  `json:"total"`
}

// RegionalTotals sums the selected columns per region. With more than
// opts.RegionOrderThreshold regions the result follows the canonical
// geographic order; otherwise regions keep first-seen order.
func RegionalTotals(ds *loader.Dataset, f resolver.Filter, opts Options) []RegionTotal {
	f = f.Normalize()
	gr := newGrouper()
	for _, sr := range selectRows(ds, f, true) {
		region := regionOf(sr.Row)
		if !knownRegion(region) {
			continue
		}
		gr.add(sr.Row.School.ID, sr.Total, region)
	}

	groups := gr.ordered()
	regions := make([]string, len(groups))
	for i, g := range groups {
		regions[i] = g.Keys[0]
	}
	if len(regions) > opts.RegionOrderThreshold {
		types.SortRegions(regions)
	}

	out := make([]RegionTotal, len(regions))
	for i, r := range regions {
		out[i] = RegionTotal{
			Region:  r,
			GeoName: types.RegionGeoName(r),
			Total:   gr.groups[groupKey(r)].Total,
		}
	}
	return out
}

// Choropleth returns regional totals keyed for the map: regions always in
// canonical order, with GeoName matching the boundary file.
func Choropleth(ds *loader.Dataset, f resolver.Filter) []RegionTotal {
	return RegionalTotals(ds, f, Options{RegionOrderThreshold: -1})
}

// GenderSplit is the male/female pie.
type GenderSplit struct {
	Male   int64 `json:"male"`
	Female int64 `json:"female"`
	// Empty is set when both totals are zero.
	Empty bool `json:"empty"`
}

// ComputeGenderSplit sums the resolved male and female columns over the
// region-filtered rows. The gender filter zeroes the excluded side.
func ComputeGenderSplit(ds *loader.Dataset, f resolver.Filter) GenderSplit {
	f = f.Normalize()
	var out GenderSplit
	if !ds.Empty() {
		sel := f.Select(ds.GradeColumns)
		for _, r := range ds.Rows {
			if !f.MatchesRegion(r.School.Region) {
				continue
			}
			if f.Gender != types.Female {
				out.Male += r.Sum(sel.Male)
			}
			if f.Gender != types.Male {
				out.Female += r.Sum(sel.Female)
			}
		}
	}
	out.Empty = out.Male == 0 && out.Female == 0
	return out
}
