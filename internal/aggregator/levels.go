package aggregator

import (
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// LevelRecord is one grade level of the K-12 distribution.
type LevelRecord struct {
	Grade      types.Grade      `json:"grade"`
	Label      string           `json:"label"`
	Group      types.GradeGroup `json:"group"`
	Male       int64            `json:"male"`
	Female     int64            `json:"female"`
	Enrollment int64            `json:"enrollment"`
}

// LevelDistribution sums every canonical grade level over the
// region-filtered rows. All fifteen levels are always present in
// pedagogical order. The grade filter does not apply; the gender filter
// selects which side is counted.
func LevelDistribution(ds *loader.Dataset, f resolver.Filter) []LevelRecord {
	f = f.Normalize()
	var columns []string
	if ds != nil {
		columns = ds.GradeColumns
	}

	grades := types.Grades()
	out := make([]LevelRecord, len(grades))
	for i, g := range grades {
		sel := resolver.Resolve(columns, []types.Grade{g}, f.Gender)
		rec := LevelRecord{Grade: g, Label: g.Label(), Group: g.Group()}
		if !ds.Empty() {
			for _, r := range ds.Rows {
				if !f.MatchesRegion(r.School.Region) {
					continue
				}
				if f.Gender != types.Female {
					rec.Male += r.Sum(sel.Male)
				}
				if f.Gender != types.Male {
					rec.Female += r.Sum(sel.Female)
				}
			}
		}
		rec.Enrollment = rec.Male + rec.Female
		out[i] = rec
	}
	return out
}

// CrossTabCell is one (COC, sector) count.
type CrossTabCell struct {
	COC     string `json:"modified_coc"`
	Sector  string `json:"sector"`
	Schools int    `json:"schools"`
}

// CrossTab is the COC by sector table. Every known category keeps its slot.
type CrossTab struct {
	COCs    []string       `json:"cocs"`
	Sectors []string       `json:"sectors"`
	Cells   []CrossTabCell `json:"cells"`
}

// Count returns the cell value for (coc, sector).
func (c CrossTab) Count(coc, sector string) int {
	for _, cell := range c.Cells {
		if cell.COC == coc && cell.Sector == sector {
			return cell.Schools
		}
	}
	return 0
}

// COCSectorCrossTab counts rows with a non-zero selected total by
// (Modified COC, Sector). Categories follow their display order; values
// outside the known vocabulary are appended after it.
func COCSectorCrossTab(ds *loader.Dataset, f resolver.Filter) CrossTab {
	f = f.Normalize()
	gr := newGrouper()
	var cocs, sectors []string
	seenC, seenS := make(map[string]bool), make(map[string]bool)

	for _, sr := range selectRows(ds, f, true) {
		if sr.Total == 0 {
			continue
		}
		s := sr.Row.School
		if !knownValue(s.ModifiedCOC) || !knownValue(s.Sector) {
			continue
		}
		gr.add(s.ID, sr.Total, s.ModifiedCOC, s.Sector)
		if !seenC[s.ModifiedCOC] {
			seenC[s.ModifiedCOC] = true
			cocs = append(cocs, s.ModifiedCOC)
		}
		if !seenS[s.Sector] {
			seenS[s.Sector] = true
			sectors = append(sectors, s.Sector)
		}
	}

	out := CrossTab{
		COCs:    withCatalog(cocs, types.COCOrder()),
		Sectors: withCatalog(sectors, types.SectorOrder()),
	}
	for _, coc := range out.COCs {
		for _, sec := range out.Sectors {
			cell := CrossTabCell{COC: coc, Sector: sec}
			if g, ok := gr.groups[groupKey(coc, sec)]; ok {
				cell.Schools = g.Rows
			}
			out.Cells = append(out.Cells, cell)
		}
	}
	return out
}

// withCatalog returns the catalog followed by any extra observed values.
func withCatalog(observed, catalog []string) []string {
	inCatalog := make(map[string]bool, len(catalog))
	out := append([]string(nil), catalog...)
	for _, c := range catalog {
		inCatalog[c] = true
	}
	for _, v := range observed {
		if !inCatalog[v] {
			out = append(out, v)
		}
	}
	return out
}

// NonGradedRegion is one region's special-needs enrollment.
type NonGradedRegion struct {
	Region string `json:"region"`
	ElemNG int64  `json:"elem_ng"`
	JHSNG  int64  `json:"jhs_ng"`
	Total  int64  `json:"total"`
}

// NonGraded is the special-needs education breakdown.
type NonGraded struct {
	Levels   []LevelRecord     `json:"levels"`
	ByRegion []NonGradedRegion `json:"by_region"`
	// Empty is set when no non-graded learner is counted.
	Empty bool `json:"empty"`
}

// NonGradedBreakdown sums the Elem NG and JHS NG columns over the
// region-filtered rows, per level and per region. The grade filter does
// not apply; the gender filter selects which side is counted. Regions
// follow the canonical order and regions with no learners are omitted.
func NonGradedBreakdown(ds *loader.Dataset, f resolver.Filter) NonGraded {
	f = f.Normalize()
	var out NonGraded
	for _, rec := range LevelDistribution(ds, f) {
		if rec.Grade == types.GradeElemNG || rec.Grade == types.GradeJHSNG {
			out.Levels = append(out.Levels, rec)
		}
	}

	var columns []string
	if ds != nil {
		columns = ds.GradeColumns
	}
	elem := resolver.Resolve(columns, []types.Grade{types.GradeElemNG}, f.Gender).Columns()
	jhs := resolver.Resolve(columns, []types.Grade{types.GradeJHSNG}, f.Gender).Columns()

	byRegion := make(map[string]*NonGradedRegion)
	var regions []string
	if !ds.Empty() {
		for _, r := range ds.Rows {
			region := regionOf(r)
			if !knownRegion(region) || !f.MatchesRegion(region) {
				continue
			}
			e, j := r.Sum(elem), r.Sum(jhs)
			if e+j == 0 {
				continue
			}
			nr, ok := byRegion[region]
			if !ok {
				nr = &NonGradedRegion{Region: region}
				byRegion[region] = nr
				regions = append(regions, region)
			}
			nr.ElemNG += e
			nr.JHSNG += j
			nr.Total += e + j
		}
	}
	types.SortRegions(regions)
	out.ByRegion = make([]NonGradedRegion, len(regions))
	for i, region := range regions {
		out.ByRegion[i] = *byRegion[region]
	}

	var total int64
	for _, rec := range out.Levels {
		total += rec.Enrollment
	}
	out.Empty = total == 0
	return out
}
