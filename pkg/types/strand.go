package types

// Strand is an SHS academic track/strand together with the token used in
// its column names.
type Strand struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// strands is the strand to column-template lookup table. Academic strands
// are written "ACAD - X"; TVL, SPORTS and ARTS use the bare token.
var strands = []Strand{
	{Label: "ABM", Token: "ACAD - ABM"},
	{Label: "HUMSS", Token: "ACAD - HUMSS"},
	{Label: "STEM", Token: "ACAD - STEM"},
	{Label: "GAS", Token: "ACAD - GAS"},
	{Label: "PBM", Token: "ACAD - PBM"},
	{Label: "TVL", Token: "TVL"},
	{Label: "SPORTS", Token: "SPORTS"},
	{Label: "ARTS & DESIGN", Token: "ARTS"},
}

// Strands returns the SHS strands in column order.
func Strands() []Strand {
	out := make([]Strand, len(strands))
	copy(out, strands)
	return out
}

// StrandByLabel finds a strand by label or token.
func StrandByLabel(name string) (Strand, bool) {
	for _, s := range strands {
		if s.Label == name || s.Token == name {
			return s, true
		}
	}
	return Strand{}, false
}

// Column returns the enrollment column for the strand, grade and gender.
func (s Strand) Column(g Grade, gender Gender) string {
	return string(g) + " " + s.Token + " " + string(gender)
}
