package aggregator

import (
	"github.com/learnerinfo/lis/internal/enrollment"
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/pkg/types"
)

type fixtureRow struct {
	school types.School
	counts map[string]int64
}

// buildDataset joins fixture rows under the fixed schema.
func buildDataset(year types.SchoolYear, rows ...fixtureRow) *loader.Dataset {
	file := enrollment.NewFile()
	schools := make(map[string]types.School)
	for _, fr := range rows {
		rec := file.Insert(string(year), fr.school.ID)
		for col, v := range fr.counts {
			rec.Counts[col] = types.Some(v)
			file.EnsureColumn(col)
		}
		if fr.school.Name != "" {
			schools[fr.school.ID] = fr.school
		}
	}
	return loader.Build(year, file, schools)
}

func school(id, region, division string) types.School {
	return types.School{
		ID:          id,
		Name:        "School " + id,
		Region:      region,
		Division:    division,
		Sector:      types.SectorPublic,
		ModifiedCOC: types.COCPurelyES,
	}
}
