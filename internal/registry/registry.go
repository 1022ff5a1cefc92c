// Package registry reads and maintains the school registry file and
// enumerates the school years that have enrollment data.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

const (
	// DefaultSearchLimit caps search results for a non-empty query.
	DefaultSearchLimit = 20
	// browseLimit caps the listing returned for an empty query.
	browseLimit = 10
	// maxAppendAttempts bounds compare-and-swap retries when appending.
	maxAppendAttempts = 3
)

// Registry provides access to the school registry.
type Registry struct {
	store  storage.ObjectStorage
	key    string
	layout enrollment.Layout
}

// New creates a registry backed by the object at key.
func New(store storage.ObjectStorage, key string, layout enrollment.Layout) *Registry {
	return &Registry{store: store, key: key, layout: layout}
}

// LoadSchools reads every school in the registry. A missing registry file
// yields an empty list.
func (r *Registry) LoadSchools(ctx context.Context) ([]types.School, error) {
	tbl, _, err := r.readTable(ctx)
	if err != nil {
		return nil, err
	}
	return schoolsFromTable(tbl), nil
}

// Index returns the registry keyed by school ID together with the version
// (ETag) of the registry object it was read from. The first row wins on
// duplicate IDs.
func (r *Registry) Index(ctx context.Context) (map[string]types.School, string, error) {
	tbl, etag, err := r.readTable(ctx)
	if err != nil {
		return nil, "", err
	}
	schools := schoolsFromTable(tbl)
	idx := make(map[string]types.School, len(schools))
	for _, s := range schools {
		if _, ok := idx[s.ID]; !ok {
			idx[s.ID] = s
		}
	}
	return idx, etag, nil
}

// GetSchoolMetadata returns the first school whose name equals name exactly.
func (r *Registry) GetSchoolMetadata(ctx context.Context, name string) (types.School, error) {
	schools, err := r.LoadSchools(ctx)
	if err != nil {
		return types.School{}, err
	}
	for _, s := range schools {
		if s.Name == name {
			return s, nil
		}
	}
	return types.School{}, lerrors.NewNotFoundError(lerrors.CodeSchoolNotFound, "school not found").
		WithDetails(map[string]interface{}{"school_name": name})
}

// GetSchoolByID returns the school with the given BEIS School ID.
func (r *Registry) GetSchoolByID(ctx context.Context, id string) (types.School, error) {
	schools, err := r.LoadSchools(ctx)
	if err != nil {
		return types.School{}, err
	}
	for _, s := range schools {
		if s.ID == id {
			return s, nil
		}
	}
	return types.School{}, lerrors.NewNotFoundError(lerrors.CodeSchoolNotFound, "school not found").
		WithDetails(map[string]interface{}{"school_id": id})
}

// Search finds schools by name or ID. An empty query lists the first ten
// named schools. Otherwise a school matches when its case-folded name
// contains the case-folded query or its ID contains the query verbatim.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]types.School, error) {
	schools, err := r.LoadSchools(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		var out []types.School
		for _, s := range schools {
			if len(out) == browseLimit {
				break
			}
			if s.Name != "" && s.Name != types.NA {
				out = append(out, s)
			}
		}
		return out, nil
	}

	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	fold := folder()
	needle := fold(query)

	var out []types.School
	for _, s := range schools {
		if len(out) == limit {
			break
		}
		if strings.Contains(fold(s.Name), needle) || strings.Contains(s.ID, query) {
			out = append(out, s)
		}
	}
	return out, nil
}

// folder returns a case- and normalization-insensitive key function.
// cases.Caser is stateful, so each call gets its own.
func folder() func(string) string {
	caser := cases.Fold()
	return func(s string) string {
		return caser.String(norm.NFKC.String(s))
	}
}

// Divisions returns the distinct divisions of region, sorted.
func (r *Registry) Divisions(ctx context.Context, region string) ([]string, error) {
	schools, err := r.LoadSchools(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, s := range schools {
		if s.Region != region || s.Division == "" || seen[s.Division] {
			continue
		}
		seen[s.Division] = true
		out = append(out, s.Division)
	}
	sort.Strings(out)
	return out, nil
}

// SchoolsIn returns the schools of one division of a region, sorted by name.
func (r *Registry) SchoolsIn(ctx context.Context, region, division string) ([]types.School, error) {
	schools, err := r.LoadSchools(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.School
	for _, s := range schools {
		if s.Region == region && s.Division == division {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AppendSchools inserts schools whose ID is not yet registered. Registry
// columns left empty are stored as N/A. It returns the number inserted.
func (r *Registry) AppendSchools(ctx context.Context, schools []types.School) (int, error) {
	if len(schools) == 0 {
		return 0, nil
	}

	for attempt := 1; ; attempt++ {
		tbl, etag, err := r.readTable(ctx)
		if err != nil {
			return 0, err
		}
		for _, col := range types.RegistryColumns() {
			tbl.AddColumn(col, types.NA)
		}

		known := make(map[string]bool, tbl.Len())
		for i := range tbl.Rows {
			known[tbl.Get(i, types.ColSchoolID)] = true
		}

		added := 0
		for _, s := range schools {
			if s.ID == "" || known[s.ID] {
				continue
			}
			known[s.ID] = true
			values := make(map[string]string, len(types.RegistryColumns()))
			for _, col := range types.RegistryColumns() {
				if v := s.Field(col); v != "" {
					values[col] = v
				}
			}
			tbl.AppendRow(values, types.NA)
			added++
		}
		if added == 0 {
			return 0, nil
		}

		data, err := tbl.CSV()
		if err != nil {
			return 0, lerrors.NewInternalError("failed to encode registry", err)
		}
		_, err = r.store.ConditionalPut(ctx, r.key, data, etag)
		if err == nil {
			log.Printf("registry: appended %d school(s) to %s", added, r.key)
			return added, nil
		}
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return 0, lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to write registry", err)
		}
		if attempt == maxAppendAttempts {
			return 0, lerrors.NewConflictError("registry changed concurrently", err)
		}
	}
}

// GetAvailableSchoolYears lists the school years that have an enrollment
// file, sorted ascending. No files yields an empty list.
func (r *Registry) GetAvailableSchoolYears(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, r.layout.Prefix)
	if err != nil {
		return nil, lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to list enrollment files", err)
	}
	years := make([]string, 0, len(keys))
	for _, key := range keys {
		if year, ok := r.layout.ParseKey(key); ok {
			years = append(years, string(year))
		}
	}
	sort.Strings(years)
	return years, nil
}

func (r *Registry) readTable(ctx context.Context) (*tabular.Table, string, error) {
	data, etag, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return tabular.New(types.RegistryColumns()), "", nil
		}
		return nil, "", lerrors.NewStorageError(lerrors.CodeReadFailed,
			fmt.Sprintf("failed to read registry %s", r.key), err)
	}
	tbl, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return tbl, etag, nil
}

func schoolsFromTable(tbl *tabular.Table) []types.School {
	cols := types.RegistryColumns()
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = tbl.Index(c)
	}

	schools := make([]types.School, 0, tbl.Len())
	for _, row := range tbl.Rows {
		var s types.School
		for i, c := range cols {
			if idx[i] >= 0 {
				s.SetField(c, strings.TrimSpace(row[idx[i]]))
			}
		}
		schools = append(schools, s)
	}
	return schools
}
