package types

import "sort"

// regionOrder is the canonical geographic order of regions.
var regionOrder = []string{
	"CAR", "NCR", "Region I", "Region II", "Region III", "Region IV-A",
	"MIMAROPA", "Region V", "Region VI", "Region VII", "Region VIII",
	"Region IX", "Region X", "Region XI", "Region XII", "CARAGA", "BARMM",
}

// regionGeoNames maps short region codes to the names used by the
// geographic boundary file.
var regionGeoNames = map[string]string{
	"CAR":         "Cordillera Administrative Region",
	"NCR":         "National Capital Region",
	"Region I":    "Ilocos",
	"Region II":   "Cagayan Valley",
	"Region III":  "Central Luzon",
	"Region IV-A": "CALABARZON",
	"MIMAROPA":    "MIMAROPA",
	"Region V":    "Bicol",
	"Region VI":   "Western Visayas",
	"Region VII":  "Central Visayas",
	"Region VIII": "Eastern Visayas",
	"Region IX":   "Zamboanga Peninsula",
	"Region X":    "Northern Mindanao",
	"Region XI":   "Davao",
	"Region XII":  "SOCCSKSARGEN",
	"CARAGA":      "Caraga",
	"BARMM":       "Bangsamoro Autonomous Region in Muslim Mindanao",
}

// Regions returns every canonical region in geographic order.
func Regions() []string {
	out := make([]string, len(regionOrder))
	copy(out, regionOrder)
	return out
}

// RegionRank returns the canonical position of a region; unknown regions
// rank after all known ones.
func RegionRank(region string) int {
	for i, r := range regionOrder {
		if r == region {
			return i
		}
	}
	return len(regionOrder)
}

// SortRegions sorts regions in place into canonical order. Unknown regions
// keep their relative order at the end.
func SortRegions(regions []string) {
	sort.SliceStable(regions, func(i, j int) bool {
		return RegionRank(regions[i]) < RegionRank(regions[j])
	})
}

// RegionGeoName returns the boundary-file name for a region code. Unknown
// codes are returned unchanged.
func RegionGeoName(region string) string {
	if name, ok := regionGeoNames[region]; ok {
		return name
	}
	return region
}

// RegionOption is a region filter choice offered to the dashboard.
type RegionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
