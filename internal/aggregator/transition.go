package aggregator

import (
	"sort"

	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// Transition holds the grade-to-grade transition rates between the
// previous school year and the current one.
type Transition struct {
	Year         string `json:"year"`
	PreviousYear string `json:"previous_year"`

	G6Previous  int64   `json:"g6_previous"`
	G7Current   int64   `json:"g7_current"`
	G6ToG7      float64 `json:"g6_to_g7"`
	G10Previous int64   `json:"g10_previous"`
	G11Current  int64   `json:"g11_current"`
	G10ToG11    float64 `json:"g10_to_g11"`

	// NoPriorYearData marks placeholder zero rates: the previous year has
	// no file or no rows. It distinguishes them from a real 0% transition.
	NoPriorYearData bool `json:"no_prior_year_data"`
	// NoCurrentYearData is the same marker for the selected year.
	NoCurrentYearData bool `json:"no_current_year_data"`
}

// TransitionRates computes G6(Y-1) to G7(Y) and G10(Y-1) to G11(Y) as
// percentages. G11 counts every track column. Either dataset may be nil;
// a missing or empty side yields zero rates and sets its marker. A zero
// denominator yields a zero rate.
func TransitionRates(current, previous *loader.Dataset, f resolver.Filter) Transition {
	f = f.Normalize()
	var t Transition
	if current != nil {
		t.Year = string(current.Year)
		t.PreviousYear = string(current.Year.Previous())
	}
	t.NoCurrentYearData = current.Empty()
	t.NoPriorYearData = previous.Empty()
	if t.NoCurrentYearData || t.NoPriorYearData {
		return t
	}
	if t.PreviousYear == "" {
		t.PreviousYear = string(previous.Year)
	}

	t.G6Previous = gradeTotal(previous, types.Grade6, f)
	t.G10Previous = gradeTotal(previous, types.Grade10, f)
	t.G7Current = gradeTotal(current, types.Grade7, f)
	t.G11Current = gradeTotal(current, types.Grade11, f)

	t.G6ToG7 = percent(t.G7Current, t.G6Previous)
	t.G10ToG11 = percent(t.G11Current, t.G10Previous)
	return t
}

func gradeTotal(ds *loader.Dataset, g types.Grade, f resolver.Filter) int64 {
	if ds.Empty() {
		return 0
	}
	cols := resolver.Resolve(ds.GradeColumns, []types.Grade{g}, f.Gender).Columns()
	var total int64
	for _, r := range ds.Rows {
		if f.MatchesRegion(r.School.Region) {
			total += r.Sum(cols)
		}
	}
	return total
}

// TrendPoint is one year of the enrollment trend.
type TrendPoint struct {
	Year  string `json:"year"`
	Total int64  `json:"total"`
}

// TrendWindow returns the available years within window positions of
// selected, in ascending order. When selected is not available the window
// is centered on the last year before it.
func TrendWindow(available []string, selected string, window int) []string {
	years := append([]string(nil), available...)
	sort.Strings(years)
	if len(years) == 0 {
		return nil
	}

	idx := sort.SearchStrings(years, selected)
	if idx == len(years) || years[idx] != selected {
		idx--
	}
	if idx < 0 {
		idx = 0
	}
	lo, hi := idx-window, idx+window
	if lo < 0 {
		lo = 0
	}
	if hi > len(years)-1 {
		hi = len(years) - 1
	}
	return years[lo : hi+1]
}

// EnrollmentTrend sums Total Enrollment per year for the region-filtered
// rows of each loaded dataset. Years without a dataset are skipped.
func EnrollmentTrend(datasets map[string]*loader.Dataset, years []string, f resolver.Filter) []TrendPoint {
	f = f.Normalize()
	out := make([]TrendPoint, 0, len(years))
	for _, y := range years {
		ds, ok := datasets[y]
		if !ok || ds == nil {
			continue
		}
		var total int64
		for _, r := range ds.Rows {
			if f.MatchesRegion(r.School.Region) {
				total += r.TotalEnrollment
			}
		}
		out = append(out, TrendPoint{Year: y, Total: total})
	}
	return out
}
