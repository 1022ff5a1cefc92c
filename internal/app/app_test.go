package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnerinfo/lis/internal/config"
	"github.com/learnerinfo/lis/internal/entry"
)

const appSchools = `BEIS School ID,School Name,Region,Division,Barangay,Sector,School Subclassification,School Type,Modified COC
100,Alpha Elementary School,NCR,Manila,Tondo,Public,DepED Managed,School with no Annexes,Purely ES
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "lis")
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Auth.BcryptCost = 4
	return cfg
}

func TestApp_ServesAPI(t *testing.T) {
	ctx := context.Background()
	a, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.Open(ctx))
	_, err = a.Storage().Put(ctx, a.Config().SchoolsFile, []byte(appSchools))
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { a.Stop(ctx) })
	base := "http://" + a.Addr()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := json.Marshal(entry.Submission{
		SchoolName: "Alpha Elementary School", Year: "2023-2024", Grade: "G1", Gender: "Male", Count: 9,
	})
	require.NoError(t, err)
	resp, err = http.Post(base+"/v1/enrollment", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/v1/years")
	require.NoError(t, err)
	var years struct {
		Years []string `json:"years"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&years))
	resp.Body.Close()
	assert.Equal(t, []string{"2023-2024"}, years.Years)

	resp, err = http.Get(base + "/v1/dashboard?year=2023-2024&region=NCR")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	filters := a.Stats().TopFilters(1)
	require.Len(t, filters, 1)
	assert.Equal(t, map[string]int{"NCR": 1}, filters[0].Values)

	fv, err := a.Catalog().GetFileVersion(ctx, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fv.Version)

	require.Error(t, a.Start(ctx), "second start")
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}

func TestApp_OpenWithoutCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Catalog.Enabled = false
	cfg.Auth.JWTSecret = "s3cret"

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Open(ctx))
	defer a.Close()

	assert.Nil(t, a.Catalog())
	assert.NotNil(t, a.Tokens())
	assert.NotNil(t, a.Writer())
	assert.Equal(t, "", a.Addr())

	years, err := a.Registry().GetAvailableSchoolYears(ctx)
	require.NoError(t, err)
	assert.Empty(t, years)
}

func TestApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "ftp"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestApp_StartupSyncRecordsExistingFiles(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, first.Open(ctx))
	_, err = first.Storage().Put(ctx, "data_2022-2023.csv", []byte("School Year,BEIS School ID,G1 Male\n2022-2023,100,4\n"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// The file was written behind the catalog's back.
	second, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, second.Open(ctx))
	defer second.Close()

	fv, err := second.Catalog().GetFileVersion(ctx, "2022-2023")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fv.RowCount)
}
