// Package types provides the core domain vocabulary of the Learner Information
// System: grade levels, genders, SHS strands, regions, schools and the fixed
// enrollment column schema.
package types

import (
	"strconv"
	"strings"
)

// Grade is a canonical grade key as it appears as a column-name prefix.
type Grade string

const (
	GradeK      Grade = "K"
	Grade1      Grade = "G1"
	Grade2      Grade = "G2"
	Grade3      Grade = "G3"
	Grade4      Grade = "G4"
	Grade5      Grade = "G5"
	Grade6      Grade = "G6"
	GradeElemNG Grade = "Elem NG"
	Grade7      Grade = "G7"
	Grade8      Grade = "G8"
	Grade9      Grade = "G9"
	Grade10     Grade = "G10"
	GradeJHSNG  Grade = "JHS NG"
	Grade11     Grade = "G11"
	Grade12     Grade = "G12"
)

// GradeGroup is the school level a grade belongs to.
type GradeGroup string

const (
	GroupES  GradeGroup = "ES"
	GroupJHS GradeGroup = "JHS"
	GroupSHS GradeGroup = "SHS"
)

// gradeOrder is the pedagogical order used for options and the K-12 axis.
var gradeOrder = []Grade{
	GradeK, Grade1, Grade2, Grade3, Grade4, Grade5, Grade6, GradeElemNG,
	Grade7, Grade8, Grade9, Grade10, GradeJHSNG,
	Grade11, Grade12,
}

// unknownRank sorts grades outside the vocabulary after every known grade.
const unknownRank = 100

// Grades returns all canonical grades in pedagogical order.
func Grades() []Grade {
	out := make([]Grade, len(gradeOrder))
	copy(out, gradeOrder)
	return out
}

// ParseGrade returns the canonical grade for s, if s names one exactly.
func ParseGrade(s string) (Grade, bool) {
	g := Grade(strings.TrimSpace(s))
	for _, known := range gradeOrder {
		if g == known {
			return g, true
		}
	}
	return "", false
}

// Rank returns the pedagogical position of the grade.
func (g Grade) Rank() int {
	for i, known := range gradeOrder {
		if g == known {
			return i
		}
	}
	return unknownRank
}

// Label returns the display label ("Kinder", "Grade 7", "Elem NG").
func (g Grade) Label() string {
	switch {
	case g == GradeK:
		return "Kinder"
	case strings.HasPrefix(string(g), "G"):
		return "Grade " + string(g)[1:]
	default:
		return string(g)
	}
}

// Group returns the school level of the grade.
func (g Grade) Group() GradeGroup {
	switch {
	case g == Grade11 || g == Grade12:
		return GroupSHS
	case g.Rank() >= Grade7.Rank() && g.Rank() <= GradeJHSNG.Rank():
		return GroupJHS
	default:
		return GroupES
	}
}

// IsSHS reports whether enrollment for the grade is split by strand.
func (g Grade) IsSHS() bool {
	return g == Grade11 || g == Grade12
}

// Column returns the plain "{grade} {gender}" column name.
// SHS grades have no plain column; use Strand.Column for those.
func (g Grade) Column(gender Gender) string {
	return string(g) + " " + string(gender)
}

// GradeOfColumn extracts the grade prefix of a column name. The prefix is
// anchored at the start and a numbered grade must not be followed by another
// digit, so "G1" never matches "G10 Male" or "G12 TVL Female".
func GradeOfColumn(column string) (Grade, bool) {
	switch {
	case strings.HasPrefix(column, string(GradeElemNG)):
		return GradeElemNG, true
	case strings.HasPrefix(column, string(GradeJHSNG)):
		return GradeJHSNG, true
	case strings.HasPrefix(column, string(GradeK)):
		return GradeK, true
	case strings.HasPrefix(column, "G"):
		end := 1
		for end < len(column) && column[end] >= '0' && column[end] <= '9' {
			end++
		}
		if end == 1 || end > 3 {
			return "", false
		}
		n, err := strconv.Atoi(column[1:end])
		if err != nil || n < 1 || n > 12 {
			return "", false
		}
		return Grade(column[:end]), true
	}
	return "", false
}

// HasGradePrefix reports whether column starts with exactly grade g.
func HasGradePrefix(column string, g Grade) bool {
	got, ok := GradeOfColumn(column)
	return ok && got == g
}

// GradeOption is a grade filter choice offered to the dashboard.
type GradeOption struct {
	Label string `json:"label"`
	Value Grade  `json:"value"`
}
