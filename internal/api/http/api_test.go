package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnerinfo/lis/internal/accounts"
	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/enrollment"
	"github.com/learnerinfo/lis/internal/entry"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/observability"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/snapshot"
	"github.com/learnerinfo/lis/internal/storage"
)

const apiSchools = `BEIS School ID,School Name,Region,Division,Barangay,Sector,School Subclassification,School Type,Modified COC
100,Alpha Elementary School,NCR,Manila,Tondo,Public,DepED Managed,School with no Annexes,Purely ES
200,Beta National High School,CAR,Baguio,Irisan,Public,DepED Managed,School with no Annexes,JHS with SHS
`

type apiFixture struct {
	handler http.Handler
	deps    Deps
}

func newAPIFixture(t *testing.T, requireAuth bool) *apiFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "data"))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.Put(ctx, "schools.csv", []byte(apiSchools))
	require.NoError(t, err)

	catalog, err := manifest.NewCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	reg := registry.New(store, "schools.csv", enrollment.DefaultLayout)
	l := loader.New(store, reg, loader.Config{Concurrency: 2, CacheEntries: 4})
	accts := accounts.NewStore(store, "users.csv", 4)
	_, err = accts.Register(ctx, accounts.Account{FirstName: "Ana", LastName: "Cruz", Email: "ana@deped.gov.ph"}, "correct-horse")
	require.NoError(t, err)

	engine := aggregator.NewEngine(l, reg, aggregator.DefaultOptions())
	stats := observability.NewUsageStats(time.Hour)
	engine.SetStats(stats)

	d := Deps{
		Engine:      engine,
		Registry:    reg,
		Writer:      entry.NewWriter(store, reg, catalog, snapshot.NewStore(store, "snapshots", 3), entry.Config{}),
		Accounts:    accts,
		Tokens:      accounts.NewTokens("test-secret", time.Hour),
		Catalog:     catalog,
		Stats:       stats,
		RequireAuth: requireAuth,
	}
	return &apiFixture{handler: DefaultMiddleware()(NewRouter(d)), deps: d}
}

func (f *apiFixture) do(t *testing.T, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) submit(t *testing.T, sub entry.Submission, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(sub)
	require.NoError(t, err)
	return f.do(t, http.MethodPost, "/v1/enrollment", body, header)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestSubmitThenDashboard(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.submit(t, entry.Submission{
		SchoolName: "Alpha Elementary School", Year: "2023-2024", Grade: "G1", Gender: "Male", Count: 10,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res entry.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "100", res.SchoolID)
	assert.Equal(t, "G1 Male", res.Column)
	assert.Equal(t, int64(10), res.Value)
	assert.True(t, res.RowCreated)

	rec = f.submit(t, entry.Submission{
		SchoolName: "Beta National High School", Year: "2023-2024", Grade: "G7", Gender: "Female", Count: 30,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2023-2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d aggregator.Dashboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.False(t, d.NoData)
	assert.Equal(t, int64(40), d.KPIs.TotalEnrolled)
	assert.Equal(t, "CAR", d.KPIs.MostEnrolledRegion)

	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2023-2024&region=NCR&gender=Male", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = aggregator.Dashboard{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, int64(10), d.Gender.Male)
	assert.Equal(t, int64(0), d.Gender.Female)

	// No year defaults to the latest file.
	rec = f.do(t, http.MethodGet, "/v1/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = aggregator.Dashboard{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, "2023-2024", d.Year)

	rec = f.do(t, http.MethodGet, "/v1/transition?year=2023-2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tr aggregator.Transition
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tr))
	assert.True(t, tr.NoPriorYearData)

	rec = f.do(t, http.MethodGet, "/v1/trend?year=2023-2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trend struct {
		Points []aggregator.TrendPoint `json:"points"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trend))
	assert.Contains(t, trend.Points, aggregator.TrendPoint{Year: "2023-2024", Total: 40})

	rec = f.do(t, http.MethodGet, "/v1/years", nil, nil)
	assert.JSONEq(t, `{"years":["2023-2024"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/submissions?year=2023-2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var journal struct {
		Submissions []manifest.Submission `json:"submissions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&journal))
	assert.Len(t, journal.Submissions, 2)
}

func TestDashboard_Errors(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, http.MethodGet, "/v1/dashboard?year=2023-2024&gender=Other", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lerrors.CodeInvalidGender, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2023-2024&grade=G13", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lerrors.CodeInvalidGrade, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2023", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No files at all and no year given.
	rec = f.do(t, http.MethodGet, "/v1/dashboard", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lerrors.CodeMissingField, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2030-2031", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d aggregator.Dashboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.True(t, d.NoData)

	rec = f.do(t, http.MethodPost, "/v1/dashboard", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStats(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, http.MethodGet, "/v1/dashboard?year=2030-2031&region=CAR", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/dashboard?year=2030-2031&region=CAR&region=NCR", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report observability.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Len(t, report.Views, 1)
	assert.Equal(t, "dashboard", report.Views[0].Name)
	assert.Equal(t, int64(2), report.Views[0].Frequency)
	require.Len(t, report.Filters, 1)
	assert.Equal(t, map[string]int{"CAR": 2, "NCR": 1}, report.Filters[0].Values)

	rec = f.do(t, http.MethodGet, "/v1/stats?limit=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_ValidationAndNotFound(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.submit(t, entry.Submission{
		SchoolName: "Alpha Elementary School", Year: "2023-2024", Grade: "G1", Gender: "Male", Count: -1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, lerrors.CodeInvalidCount, resp.Code)
	assert.NotEmpty(t, resp.RequestID)

	rec = f.submit(t, entry.Submission{
		SchoolName: "Nowhere School", Year: "2023-2024", Grade: "G1", Gender: "Male", Count: 1,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/enrollment", []byte("{"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_NonIntegerCount(t *testing.T) {
	f := newAPIFixture(t, false)

	for _, count := range []string{`"5"`, `5.5`, `1e19`, `true`} {
		body := `{"school_name":"Alpha Elementary School","year":"2023-2024","grade":"G1","gender":"Male","count":` + count + `}`
		rec := f.do(t, http.MethodPost, "/v1/enrollment", []byte(body), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, count)
		resp := decodeError(t, rec)
		assert.Equal(t, lerrors.CodeInvalidCount, resp.Code, count)
		assert.Contains(t, resp.Error, "invalid count", count)
	}

	rec := f.do(t, http.MethodPost, "/v1/enrollment", []byte(`{"school_name":5}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, lerrors.CodeInvalidCount, decodeError(t, rec).Code)
}

func TestSchools(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, http.MethodGet, "/v1/schools?q=beta", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int `json:"count"`
		Schools []struct {
			ID string `json:"beis_school_id"`
		} `json:"schools"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	rec = f.do(t, http.MethodGet, "/v1/schools?region=NCR&division=Manila", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alpha Elementary School")

	rec = f.do(t, http.MethodGet, "/v1/divisions?region=CAR", nil, nil)
	assert.JSONEq(t, `{"region":"CAR","divisions":["Baguio"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/schools/200", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Beta National High School")
	assert.NotContains(t, rec.Body.String(), "summary")

	rec = f.do(t, http.MethodGet, "/v1/schools/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.submit(t, entry.Submission{
		SchoolName: "Beta National High School", Year: "2023-2024", Grade: "G11", Gender: "Female", Strand: "STEM", Count: 12,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/schools/200?year=2023-2024", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail SchoolResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.NotNil(t, detail.Summary)
	assert.Equal(t, int64(12), detail.Summary.TotalFemale)
}

func TestEnrollmentExport(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.submit(t, entry.Submission{
		SchoolName: "Alpha Elementary School", Year: "2023-2024", Grade: "K", Gender: "Female", Count: 7,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/enrollment?year=2023-2024&format=csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "enrollment_2023-2024.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "100,Alpha Elementary School,NCR,Manila,0,7,7"))

	rec = f.do(t, http.MethodGet, "/v1/enrollment?year=2023-2024&format=xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = f.do(t, http.MethodGet, "/v1/enrollment?year=2023-2024&format=pdf", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lerrors.CodeUnsupportedInput, decodeError(t, rec).Code)
}

func multipartBody(t *testing.T, name, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	f := newAPIFixture(t, false)

	body, ct := multipartBody(t, "2023.csv", "BEIS School ID,School Name,Region,G1 Male\n100,Alpha Elementary School,NCR,4\n555,Gamma School,CAR,6\n")
	rec := f.do(t, http.MethodPost, "/v1/enrollment/upload?year=2023-2024", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res entry.UploadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, res.NewSchools)

	rec = f.do(t, http.MethodGet, "/v1/schools/555", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body, ct = multipartBody(t, "bad.csv", "BEIS School ID,G1 Male\n100,-3\n")
	rec = f.do(t, http.MethodPost, "/v1/enrollment/upload?year=2023-2024", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lerrors.CodeInvalidCount, decodeError(t, rec).Code)

	body, ct = multipartBody(t, "notes.pdf", "x")
	rec = f.do(t, http.MethodPost, "/v1/enrollment/upload?year=2023-2024", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/enrollment/upload", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	f := newAPIFixture(t, true)
	sub := entry.Submission{
		SchoolName: "Alpha Elementary School", Year: "2023-2024", Grade: "G2", Gender: "Male", Count: 3,
	}

	rec := f.submit(t, sub, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.submit(t, sub, map[string]string{"Authorization": "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, lerrors.CodeInvalidToken, decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/v1/auth/login", []byte(`{"email":"ana@deped.gov.ph","password":"wrong-pass"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/auth/login", []byte(`{"email":"ANA@deped.gov.ph","password":"correct-horse"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.Equal(t, "Ana Cruz", login.Name)

	rec = f.submit(t, sub, map[string]string{"Authorization": "Bearer " + login.Token})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Reads stay open.
	rec = f.do(t, http.MethodGet, "/v1/enrollment?year=2023-2024", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{lerrors.NewValidationError(lerrors.CodeInvalidYear, "x"), http.StatusBadRequest},
		{lerrors.NewMalformedError("x", nil), http.StatusBadRequest},
		{lerrors.NewNotFoundError(lerrors.CodeSchoolNotFound, "x"), http.StatusNotFound},
		{lerrors.NewConflictError("x", nil), http.StatusConflict},
		{lerrors.NewAuthError(lerrors.CodeInvalidCredentials, "x"), http.StatusUnauthorized},
		{lerrors.NewStorageError(lerrors.CodeWriteFailed, "x", nil), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWriteLISError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeLISError(rec, lerrors.NewStorageError(lerrors.CodeWriteFailed, "disk on fire", nil), "req-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, lerrors.CodeWriteFailed, resp.Code)
	assert.Equal(t, "req-1", resp.RequestID)
}
