package aggregator

import (
	"sort"

	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// DivisionTotal is one entry of the division leaderboard.
type DivisionTotal struct {
	Division string `json:"division"`
	Region   string `json:"region"`
	Schools  int    `json:"schools"`
	Total    int64  `json:"total"`
}

// DivisionLeaderboard groups by (Division, Region), counting distinct
// schools and summing the selected total, then keeps the top
// opts.LeaderboardSize by total. Ties keep first-seen order.
func DivisionLeaderboard(ds *loader.Dataset, f resolver.Filter, opts Options) []DivisionTotal {
	f = f.Normalize()
	gr := newGrouper()
	for _, sr := range selectRows(ds, f, true) {
		s := sr.Row.School
		if !knownValue(s.Division) || !knownRegion(s.Region) {
			continue
		}
		gr.add(s.ID, sr.Total, s.Division, s.Region)
	}

	out := make([]DivisionTotal, 0, len(gr.order))
	for _, g := range gr.ordered() {
		out = append(out, DivisionTotal{
			Division: g.Keys[0],
			Region:   g.Keys[1],
			Schools:  g.Schools(),
			Total:    g.Total,
		})
	}

	// Stable sort preserves insertion order for equal totals
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })

	if opts.LeaderboardSize > 0 && len(out) > opts.LeaderboardSize {
		out = out[:opts.LeaderboardSize]
	}
	return out
}

// SectorShare is one sector's share of schools.
type SectorShare struct {
	Sector  string  `json:"sector"`
	Schools int     `json:"schools"`
	Percent float64 `json:"percent"`
}

// KPIs are the headline scalars.
type KPIs struct {
	TotalEnrolled int64 `json:"total_enrolled"`
	TotalSchools  int   `json:"total_schools"`

	// MostEnrolledRegion ignores the region filter: it always answers for
	// the whole dataset.
	MostEnrolledRegion      string `json:"most_enrolled_region"`
	MostEnrolledRegionTotal int64  `json:"most_enrolled_region_total"`

	MostEnrolledDivision      string `json:"most_enrolled_division"`
	MostEnrolledDivisionTotal int64  `json:"most_enrolled_division_total"`

	// SectorRatio is computed over every school of the year, unfiltered.
	SectorRatio []SectorShare `json:"sector_ratio"`
}

// ComputeKPIs computes the headline scalars.
func ComputeKPIs(ds *loader.Dataset, f resolver.Filter) KPIs {
	f = f.Normalize()
	var k KPIs

	filtered := selectRows(ds, f, true)
	schools := make(map[string]struct{})
	divisions := newGrouper()
	for _, sr := range filtered {
		k.TotalEnrolled += sr.Total
		schools[sr.Row.School.ID] = struct{}{}
		if d := sr.Row.School.Division; knownValue(d) {
			divisions.add(sr.Row.School.ID, sr.Total, d)
		}
	}
	k.TotalSchools = len(schools)
	k.MostEnrolledDivision, k.MostEnrolledDivisionTotal = argmax(divisions)

	regions := newGrouper()
	for _, sr := range selectRows(ds, f, false) {
		if region := regionOf(sr.Row); knownRegion(region) {
			regions.add(sr.Row.School.ID, sr.Total, region)
		}
	}
	k.MostEnrolledRegion, k.MostEnrolledRegionTotal = argmax(regions)

	k.SectorRatio = sectorRatio(ds)
	return k
}

// argmax returns the first group with the largest total.
func argmax(gr *grouper) (string, int64) {
	var (
		best  string
		total int64
		found bool
	)
	for _, g := range gr.ordered() {
		if !found || g.Total > total {
			best, total, found = g.Keys[0], g.Total, true
		}
	}
	return best, total
}

func sectorRatio(ds *loader.Dataset) []SectorShare {
	if ds.Empty() {
		return nil
	}
	seen := make(map[string]bool)
	counts := make(map[string]int)
	var sectors []string
	total := 0
	for _, r := range ds.Rows {
		s := r.School
		if !knownValue(s.Sector) || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if _, ok := counts[s.Sector]; !ok {
			sectors = append(sectors, s.Sector)
		}
		counts[s.Sector]++
		total++
	}

	sectors = orderByCatalog(sectors, types.SectorOrder())
	out := make([]SectorShare, len(sectors))
	for i, sec := range sectors {
		out[i] = SectorShare{
			Sector:  sec,
			Schools: counts[sec],
			Percent: percent(int64(counts[sec]), int64(total)),
		}
	}
	return out
}
