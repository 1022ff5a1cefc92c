package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/pkg/types"
)

const registryCSV = `BEIS School ID,School Name,Region,Division,Barangay,Sector,School Subclassification,School Type,Modified COC
100001,Alpha Elementary School,NCR,Manila,Tondo,Public,DepED Managed,School with no Annexes,Purely ES
100002,Beta National High School,NCR,Quezon City,Bagong Pag-asa,Public,DepED Managed,School with no Annexes,JHS with SHS
100003,Ñino Integrated School,Region I,Ilocos Norte,San Nicolas,Private,Sectarian,School with no Annexes,All Offering
100004,alpha elementary school,Region I,Pangasinan,Lingayen,Public,DepED Managed,School with no Annexes,Purely ES
`

func newTestRegistry(t *testing.T, contents string) (*Registry, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	if contents != "" {
		_, err := store.Put(context.Background(), "schools.csv", []byte(contents))
		require.NoError(t, err)
	}
	return New(store, "schools.csv", enrollment.DefaultLayout), store
}

func TestLoadSchools(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	schools, err := reg.LoadSchools(context.Background())
	require.NoError(t, err)
	require.Len(t, schools, 4)
	assert.Equal(t, "Beta National High School", schools[1].Name)
	assert.Equal(t, "JHS with SHS", schools[1].ModifiedCOC)
}

func TestLoadSchools_MissingFile(t *testing.T) {
	reg, _ := newTestRegistry(t, "")
	schools, err := reg.LoadSchools(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schools)
}

func TestGetSchoolMetadata_ExactMatch(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	s, err := reg.GetSchoolMetadata(ctx, "Alpha Elementary School")
	require.NoError(t, err)
	assert.Equal(t, "100001", s.ID)

	// Case-sensitive: the lowercase twin is a different school.
	s, err = reg.GetSchoolMetadata(ctx, "alpha elementary school")
	require.NoError(t, err)
	assert.Equal(t, "100004", s.ID)

	_, err = reg.GetSchoolMetadata(ctx, "ALPHA ELEMENTARY SCHOOL")
	require.Error(t, err)
	assert.True(t, lerrors.IsNotFound(err))
	assert.Equal(t, lerrors.CodeSchoolNotFound, lerrors.GetCode(err))
}

func TestGetSchoolByID(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	s, err := reg.GetSchoolByID(context.Background(), "100003")
	require.NoError(t, err)
	assert.Equal(t, "Region I", s.Region)

	_, err = reg.GetSchoolByID(context.Background(), "999")
	assert.True(t, lerrors.IsNotFound(err))
}

func TestSearch(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	all, err := reg.Search(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byName, err := reg.Search(ctx, "ALPHA", 0)
	require.NoError(t, err)
	require.Len(t, byName, 2)
	assert.Equal(t, "100001", byName[0].ID)

	// Folding handles accented capitals.
	accented, err := reg.Search(ctx, "ñino", 0)
	require.NoError(t, err)
	require.Len(t, accented, 1)
	assert.Equal(t, "100003", accented[0].ID)

	byID, err := reg.Search(ctx, "0002", 0)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "Beta National High School", byID[0].Name)

	limited, err := reg.Search(ctx, "school", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDivisionsAndSchoolsIn(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	divs, err := reg.Divisions(ctx, "NCR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Manila", "Quezon City"}, divs)

	schools, err := reg.SchoolsIn(ctx, "Region I", "Pangasinan")
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "100004", schools[0].ID)
}

func TestAppendSchools(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	added, err := reg.AppendSchools(ctx, []types.School{
		{ID: "100001", Name: "Duplicate"},
		{ID: "200001", Name: "Gamma ES", Region: "CAR"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	s, err := reg.GetSchoolByID(ctx, "200001")
	require.NoError(t, err)
	assert.Equal(t, "Gamma ES", s.Name)
	assert.Equal(t, "CAR", s.Region)
	assert.Equal(t, types.NA, s.Division)

	orig, err := reg.GetSchoolByID(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Elementary School", orig.Name)
}

func TestAppendSchools_CreatesRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t, "")
	added, err := reg.AppendSchools(context.Background(), []types.School{{ID: "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	schools, err := reg.LoadSchools(context.Background())
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, types.NA, schools[0].Name)
}

func TestGetAvailableSchoolYears(t *testing.T) {
	reg, store := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	years, err := reg.GetAvailableSchoolYears(ctx)
	require.NoError(t, err)
	assert.Empty(t, years)

	for _, key := range []string{"data_2024-2025.csv", "data_2022-2023.csv", "data_notes.csv", "data_2023-2025.csv"} {
		_, err := store.Put(ctx, key, []byte("x"))
		require.NoError(t, err)
	}

	years, err = reg.GetAvailableSchoolYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2022-2023", "2024-2025"}, years)
}

func TestIndex_VersionTracksWrites(t *testing.T) {
	reg, _ := newTestRegistry(t, registryCSV)
	ctx := context.Background()

	idx, v1, err := reg.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, idx, 4)
	assert.Equal(t, "Beta National High School", idx["100002"].Name)

	_, err = reg.AppendSchools(ctx, []types.School{{ID: "300001", Name: "Delta"}})
	require.NoError(t, err)

	idx, v2, err := reg.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, idx, 5)
	assert.NotEqual(t, v1, v2)
}
