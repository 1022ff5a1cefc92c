// Package resolver turns a grade/gender filter into the set of enrollment
// columns that participate in a sum. Every aggregation goes through it, so
// all views agree on which columns a filter selects.
package resolver

import (
	"fmt"
	"strings"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/pkg/types"
)

// Selection is the resolved male and female column lists.
type Selection struct {
	Male   []string
	Female []string
	Gender types.Gender
}

// Columns returns the columns that participate under the gender filter.
func (s Selection) Columns() []string {
	switch s.Gender {
	case types.Male:
		return s.Male
	case types.Female:
		return s.Female
	}
	out := make([]string, 0, len(s.Male)+len(s.Female))
	out = append(out, s.Male...)
	return append(out, s.Female...)
}

// Resolve maps selected grades and a gender filter onto columns.
//
// With no grades selected every discovered grade column participates,
// split by its gender suffix. A non-SHS grade contributes exactly
// "{grade} Male" and "{grade} Female". G11 and G12 fan out to every
// discovered column carrying that grade prefix.
func Resolve(gradeColumns []string, grades []types.Grade, gender types.Gender) Selection {
	if gender == "" {
		gender = types.All
	}
	sel := Selection{Gender: gender}

	if len(grades) == 0 {
		for _, c := range gradeColumns {
			sel.add(c)
		}
		return sel
	}

	seen := make(map[types.Grade]bool, len(grades))
	for _, g := range grades {
		if seen[g] {
			continue
		}
		seen[g] = true

		if !g.IsSHS() {
			sel.Male = append(sel.Male, g.Column(types.Male))
			sel.Female = append(sel.Female, g.Column(types.Female))
			continue
		}
		for _, c := range gradeColumns {
			if types.HasGradePrefix(c, g) {
				sel.add(c)
			}
		}
	}
	return sel
}

func (s *Selection) add(column string) {
	switch {
	case types.IsFemaleColumn(column):
		s.Female = append(s.Female, column)
	case types.IsMaleColumn(column):
		s.Male = append(s.Male, column)
	}
}

// Filter is the region/grade/gender tuple every view accepts.
type Filter struct {
	Regions []string      `json:"regions,omitempty"`
	Grades  []types.Grade `json:"grades,omitempty"`
	Gender  types.Gender  `json:"gender,omitempty"`
}

// Normalize trims blanks, drops duplicates and defaults the gender to All.
func (f Filter) Normalize() Filter {
	out := Filter{Gender: f.Gender}
	if out.Gender == "" {
		out.Gender = types.All
	}
	seenR := make(map[string]bool)
	for _, r := range f.Regions {
		r = strings.TrimSpace(r)
		if r == "" || seenR[r] {
			continue
		}
		seenR[r] = true
		out.Regions = append(out.Regions, r)
	}
	seenG := make(map[types.Grade]bool)
	for _, g := range f.Grades {
		if g == "" || seenG[g] {
			continue
		}
		seenG[g] = true
		out.Grades = append(out.Grades, g)
	}
	return out
}

// MatchesRegion reports whether region passes the region filter.
func (f Filter) MatchesRegion(region string) bool {
	if len(f.Regions) == 0 {
		return true
	}
	for _, r := range f.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// Select resolves the filter against discovered grade columns.
func (f Filter) Select(gradeColumns []string) Selection {
	return Resolve(gradeColumns, f.Grades, f.Gender)
}

// ParseFilter builds a filter from raw request values. Unknown grades and
// genders are rejected.
func ParseFilter(regions, grades []string, gender string) (Filter, error) {
	f := Filter{Regions: regions}

	g, ok := types.ParseGender(gender)
	if !ok {
		return Filter{}, lerrors.NewValidationError(lerrors.CodeInvalidGender,
			fmt.Sprintf("unknown gender %q (expected Male, Female or All)", gender))
	}
	f.Gender = g

	for _, raw := range grades {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		grade, ok := types.ParseGrade(raw)
		if !ok {
			return Filter{}, lerrors.NewValidationError(lerrors.CodeInvalidGrade,
				fmt.Sprintf("unknown grade %q", raw))
		}
		f.Grades = append(f.Grades, grade)
	}
	return f.Normalize(), nil
}
