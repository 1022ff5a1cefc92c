// Package loader builds the per-year enrollment dataset: the enrollment
// file left-joined to the school registry, with derived gender totals and
// the grade and region filter options.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/learnerinfo/lis/internal/cache"
	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/notify"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

// Row is one enrollment record joined to its school.
type Row struct {
	SchoolYear string
	// School carries the registry attributes. Only ID is set when the
	// school is not registered.
	School  types.School
	Matched bool
	Counts  map[string]types.Count

	TotalMale       int64
	TotalFemale     int64
	TotalEnrollment int64
}

// Count returns a grade column's value, 0 when unset or absent.
func (r *Row) Count(column string) int64 {
	return r.Counts[column].Int()
}

// Sum adds up the given columns.
func (r *Row) Sum(columns []string) int64 {
	var total int64
	for _, c := range columns {
		total += r.Counts[c].Int()
	}
	return total
}

// Dataset is the loaded table for one school year. Datasets are shared
// through the cache and must not be modified.
type Dataset struct {
	Year          types.SchoolYear
	Rows          []*Row
	GradeColumns  []string
	GradeOptions  []types.GradeOption
	RegionOptions []types.RegionOption
	Fingerprint   string
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Rows) == 0
}

// HasColumn reports whether the enrollment file carried column.
func (d *Dataset) HasColumn(column string) bool {
	for _, c := range d.GradeColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Config holds loader configuration.
type Config struct {
	Layout       enrollment.Layout
	Concurrency  int
	CacheEntries int
}

// Loader loads per-year datasets.
type Loader struct {
	store    storage.ObjectStorage
	registry *registry.Registry
	layout   enrollment.Layout
	batch    *storage.BatchGetter
	conc     int
	cache    *cache.LRU[*Dataset]
}

// New creates a loader.
func New(store storage.ObjectStorage, reg *registry.Registry, cfg Config) *Loader {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Layout.Prefix == "" {
		cfg.Layout = enrollment.DefaultLayout
	}
	return &Loader{
		store:    store,
		registry: reg,
		layout:   cfg.Layout,
		batch:    storage.NewBatchGetter(store, cfg.Concurrency),
		conc:     cfg.Concurrency,
		cache:    cache.NewLRU[*Dataset](cfg.CacheEntries),
	}
}

// Cache exposes the dataset cache for stats.
func (l *Loader) Cache() *cache.LRU[*Dataset] {
	return l.cache
}

// Watch drops the cached dataset of every year named by an event on sub.
// It returns when the subscription is closed.
func (l *Loader) Watch(sub *notify.Subscriber) {
	for e := range sub.Ch {
		l.cache.Invalidate(e.Year)
	}
}

// LoadDataForYear loads the dataset for year. A year without an enrollment
// file fails with a NOT_FOUND error coded YEAR_NOT_FOUND.
func (l *Loader) LoadDataForYear(ctx context.Context, year string) (*Dataset, error) {
	sy, err := types.ParseSchoolYear(year)
	if err != nil {
		return nil, lerrors.NewValidationError(lerrors.CodeInvalidYear, err.Error())
	}

	key := l.layout.Key(sy)
	data, _, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, l.readError(sy, key, err)
	}
	return l.build(ctx, sy, data)
}

// LoadYears loads several years with bounded concurrency. Years whose files
// are missing or unreadable are skipped; only context cancellation fails
// the call.
func (l *Loader) LoadYears(ctx context.Context, years []string) (map[string]*Dataset, error) {
	keys := make([]string, 0, len(years))
	byKey := make(map[string]types.SchoolYear, len(years))
	for _, y := range years {
		sy, err := types.ParseSchoolYear(y)
		if err != nil {
			continue
		}
		key := l.layout.Key(sy)
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = sy
		keys = append(keys, key)
	}

	fetched, err := l.batch.Get(ctx, keys)
	if err != nil {
		return nil, err
	}
	for key, ferr := range fetched.Errors {
		if !errors.Is(ferr, storage.ErrObjectNotFound) {
			log.Printf("loader: skipping %s: %v", key, ferr)
		}
	}

	out := make(map[string]*Dataset, len(fetched.Objects))
	results := make([]*Dataset, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.conc)
	for i, key := range keys {
		obj, ok := fetched.Objects[key]
		if !ok {
			continue
		}
		i, sy, data := i, byKey[key], obj.Data
		g.Go(func() error {
			ds, err := l.build(gctx, sy, data)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("loader: skipping %s: %v", sy, err)
				return nil
			}
			results[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, ds := range results {
		if ds != nil {
			out[string(ds.Year)] = ds
		}
	}
	return out, nil
}

func (l *Loader) readError(year types.SchoolYear, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return lerrors.NewNotFoundError(lerrors.CodeYearNotFound,
			fmt.Sprintf("dataset for year %s not found at %s", year, key)).
			WithDetails(map[string]interface{}{"school_year": string(year)})
	}
	return lerrors.NewStorageError(lerrors.CodeReadFailed,
		fmt.Sprintf("failed to read %s", key), err)
}

func (l *Loader) build(ctx context.Context, year types.SchoolYear, data []byte) (*Dataset, error) {
	schools, regVersion, err := l.registry.Index(ctx)
	if err != nil {
		return nil, err
	}

	fingerprint := storage.Fingerprint(data) + ":" + regVersion
	if ds, ok := l.cache.Get(string(year), fingerprint); ok {
		return ds, nil
	}

	tbl, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	file, err := enrollment.DecodeTable(tbl)
	if err != nil {
		return nil, err
	}

	ds := Build(year, file, schools)
	ds.Fingerprint = fingerprint
	l.cache.Put(string(year), fingerprint, ds)
	return ds, nil
}

// Build joins a decoded enrollment file to the registry index. Enrollment
// rows without a registered school are kept with empty geography.
func Build(year types.SchoolYear, file *enrollment.File, schools map[string]types.School) *Dataset {
	gradeColumns := file.GradeColumns()

	var maleCols, femaleCols []string
	for _, c := range gradeColumns {
		switch {
		case types.IsFemaleColumn(c):
			femaleCols = append(femaleCols, c)
		case types.IsMaleColumn(c):
			maleCols = append(maleCols, c)
		}
	}

	ds := &Dataset{
		Year:         year,
		Rows:         make([]*Row, 0, len(file.Records)),
		GradeColumns: gradeColumns,
	}

	regions := make(map[string]bool)
	for _, rec := range file.Records {
		row := &Row{
			SchoolYear: rec.SchoolYear,
			Counts:     rec.Counts,
		}
		if s, ok := schools[rec.SchoolID]; ok {
			row.School = s
			row.Matched = true
		} else {
			row.School = types.School{ID: rec.SchoolID}
		}
		row.TotalMale = row.Sum(maleCols)
		row.TotalFemale = row.Sum(femaleCols)
		row.TotalEnrollment = row.TotalMale + row.TotalFemale

		if row.School.Region != "" {
			regions[row.School.Region] = true
		}
		ds.Rows = append(ds.Rows, row)
	}

	ds.GradeOptions = gradeOptions(gradeColumns)
	for _, r := range types.Regions() {
		if regions[r] {
			ds.RegionOptions = append(ds.RegionOptions, types.RegionOption{Label: r, Value: r})
		}
	}
	return ds
}

func gradeOptions(columns []string) []types.GradeOption {
	seen := make(map[types.Grade]bool)
	var grades []types.Grade
	for _, c := range columns {
		g, ok := types.GradeOfColumn(c)
		if !ok || seen[g] {
			continue
		}
		seen[g] = true
		grades = append(grades, g)
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].Rank() < grades[j].Rank() })

	opts := make([]types.GradeOption, len(grades))
	for i, g := range grades {
		opts[i] = types.GradeOption{Label: g.Label(), Value: g}
	}
	return opts
}
