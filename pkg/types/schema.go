package types

// Enrollment file key columns.
const (
	ColSchoolYear = "School Year"
)

// Derived total columns cached on loaded tables.
const (
	ColTotalMale       = "Total Male"
	ColTotalFemale     = "Total Female"
	ColTotalEnrollment = "Total Enrollment"
)

var (
	countColumns      = buildCountColumns()
	enrollmentColumns = append([]string{ColSchoolYear, ColSchoolID}, countColumns...)
)

func buildCountColumns() []string {
	var cols []string
	for _, g := range gradeOrder {
		if g.IsSHS() {
			for _, s := range strands {
				for _, gender := range Genders() {
					cols = append(cols, s.Column(g, gender))
				}
			}
			continue
		}
		for _, gender := range Genders() {
			cols = append(cols, g.Column(gender))
		}
	}
	return cols
}

// EnrollmentColumns returns the fixed per-year file schema: School Year,
// BEIS School ID, then every grade x gender column in canonical order.
func EnrollmentColumns() []string {
	out := make([]string, len(enrollmentColumns))
	copy(out, enrollmentColumns)
	return out
}

// CountColumns returns only the grade x gender columns of the schema.
func CountColumns() []string {
	out := make([]string, len(countColumns))
	copy(out, countColumns)
	return out
}

// IsCountColumn reports whether column belongs to the fixed count schema.
func IsCountColumn(column string) bool {
	for _, c := range countColumns {
		if c == column {
			return true
		}
	}
	return false
}
