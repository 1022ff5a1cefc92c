package aggregator

import (
	"sort"

	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// TrackRecord is one (school, year, SHS grade, strand, gender) cell with
// a non-zero value.
type TrackRecord struct {
	SchoolID   string       `json:"school_id"`
	Region     string       `json:"region"`
	SchoolYear string       `json:"school_year"`
	Grade      types.Grade  `json:"grade_level"`
	Track      string       `json:"track"`
	Gender     types.Gender `json:"gender"`
	Enrollment int64        `json:"enrollment"`
}

// ExplodeTracks turns the wide SHS columns into track records. Zero and
// unset cells produce no record.
func ExplodeTracks(ds *loader.Dataset) []TrackRecord {
	if ds.Empty() {
		return nil
	}

	type cell struct {
		column string
		grade  types.Grade
		strand types.Strand
		gender types.Gender
	}
	var cells []cell
	for _, g := range []types.Grade{types.Grade11, types.Grade12} {
		for _, s := range types.Strands() {
			for _, gen := range types.Genders() {
				col := s.Column(g, gen)
				if ds.HasColumn(col) {
					cells = append(cells, cell{col, g, s, gen})
				}
			}
		}
	}

	var out []TrackRecord
	for _, r := range ds.Rows {
		for _, c := range cells {
			v := r.Count(c.column)
			if v <= 0 {
				continue
			}
			out = append(out, TrackRecord{
				SchoolID:   r.School.ID,
				Region:     r.School.Region,
				SchoolYear: r.SchoolYear,
				Grade:      c.grade,
				Track:      c.strand.Label,
				Gender:     c.gender,
				Enrollment: v,
			})
		}
	}
	return out
}

// TrackTotal is one (track, grade) bar segment.
type TrackTotal struct {
	Track string      `json:"track"`
	Grade types.Grade `json:"grade_level"`
	Total int64       `json:"total"`
}

// TrackBreakdown is the SHS track chart. Empty marks the no-data placeholder.
type TrackBreakdown struct {
	Tracks []TrackTotal `json:"tracks"`
	Empty  bool         `json:"empty"`
}

// SHSTrackBreakdown filters track records by the dataset's school year,
// region and gender, then sums per (track, grade). Tracks follow the strand
// table order, G11 before G12.
func SHSTrackBreakdown(ds *loader.Dataset, f resolver.Filter) TrackBreakdown {
	f = f.Normalize()
	gr := newGrouper()
	for _, tr := range ExplodeTracks(ds) {
		if ds.Year != "" && tr.SchoolYear != string(ds.Year) {
			continue
		}
		if !f.MatchesRegion(tr.Region) {
			continue
		}
		if f.Gender != types.All && tr.Gender != f.Gender {
			continue
		}
		gr.add(tr.SchoolID, tr.Enrollment, tr.Track, string(tr.Grade))
	}

	rank := make(map[string]int)
	for i, s := range types.Strands() {
		rank[s.Label] = i
	}

	out := TrackBreakdown{Tracks: make([]TrackTotal, 0, len(gr.order))}
	for _, g := range gr.ordered() {
		out.Tracks = append(out.Tracks, TrackTotal{
			Track: g.Keys[0],
			Grade: types.Grade(g.Keys[1]),
			Total: g.Total,
		})
	}
	sort.SliceStable(out.Tracks, func(i, j int) bool {
		a, b := out.Tracks[i], out.Tracks[j]
		if a.Track != b.Track {
			return rank[a.Track] < rank[b.Track]
		}
		return a.Grade.Rank() < b.Grade.Rank()
	})
	out.Empty = len(out.Tracks) == 0
	return out
}
