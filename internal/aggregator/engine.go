package aggregator

import (
	"context"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/observability"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/resolver"
	"github.com/learnerinfo/lis/pkg/types"
)

// Engine binds the pure views to the loader for requests that span years.
type Engine struct {
	loader   *loader.Loader
	registry *registry.Registry
	opts     Options
	stats    *observability.UsageStats
}

// NewEngine creates an engine.
func NewEngine(l *loader.Loader, reg *registry.Registry, opts Options) *Engine {
	return &Engine{loader: l, registry: reg, opts: opts}
}

// SetStats makes the engine record each view and filter it serves.
func (e *Engine) SetStats(stats *observability.UsageStats) {
	e.stats = stats
}

func (e *Engine) record(view, year string, f *resolver.Filter) {
	if e.stats == nil {
		return
	}
	e.stats.RecordView(view, year)
	if f == nil {
		return
	}
	for _, r := range f.Regions {
		e.stats.RecordFilter("region", r)
	}
	for _, g := range f.Grades {
		e.stats.RecordFilter("grade", string(g))
	}
	if f.Gender != "" && f.Gender != types.All {
		e.stats.RecordFilter("gender", string(f.Gender))
	}
}

// Options returns the engine's view options.
func (e *Engine) Options() Options {
	return e.opts
}

// Dashboard bundles every view for one year and filter.
type Dashboard struct {
	Year   string          `json:"year"`
	Filter resolver.Filter `json:"filter"`
	// NoData is set when the year has no enrollment file.
	NoData bool `json:"no_data"`

	GradeOptions  []types.GradeOption  `json:"grade_options"`
	RegionOptions []types.RegionOption `json:"region_options"`

	Regional    []RegionTotal   `json:"regional_totals"`
	Choropleth  []RegionTotal   `json:"choropleth"`
	Gender      GenderSplit     `json:"gender_split"`
	Divisions   []DivisionTotal `json:"division_leaderboard"`
	KPIs        KPIs            `json:"kpis"`
	Tracks      TrackBreakdown  `json:"shs_tracks"`
	Levels      []LevelRecord   `json:"level_distribution"`
	NonGraded   NonGraded       `json:"non_graded"`
	COCBySector CrossTab        `json:"coc_sector"`
	Transition  Transition      `json:"transition"`
	Trend       []TrendPoint    `json:"trend"`
}

// Build computes every single-year view over ds. It never fails.
func Build(ds *loader.Dataset, f resolver.Filter, opts Options) *Dashboard {
	f = f.Normalize()
	d := &Dashboard{
		Filter:      f,
		NoData:      ds == nil,
		Regional:    RegionalTotals(ds, f, opts),
		Choropleth:  Choropleth(ds, f),
		Gender:      ComputeGenderSplit(ds, f),
		Divisions:   DivisionLeaderboard(ds, f, opts),
		KPIs:        ComputeKPIs(ds, f),
		Tracks:      SHSTrackBreakdown(ds, f),
		Levels:      LevelDistribution(ds, f),
		NonGraded:   NonGradedBreakdown(ds, f),
		COCBySector: COCSectorCrossTab(ds, f),
	}
	if ds != nil {
		d.Year = string(ds.Year)
		d.GradeOptions = ds.GradeOptions
		d.RegionOptions = ds.RegionOptions
	}
	return d
}

// Dashboard loads year and computes every view, including the transition
// rates and the trend. A year without data yields an empty dashboard with
// NoData set rather than an error.
func (e *Engine) Dashboard(ctx context.Context, year string, f resolver.Filter) (*Dashboard, error) {
	e.record("dashboard", year, &f)
	ds, err := e.loadOptional(ctx, year)
	if err != nil {
		return nil, err
	}

	d := Build(ds, f, e.opts)
	d.Year = year

	if d.Transition, err = e.transition(ctx, ds, year, d.Filter); err != nil {
		return nil, err
	}
	if d.Trend, err = e.trend(ctx, year, d.Filter); err != nil {
		return nil, err
	}
	return d, nil
}

// Transition computes transition rates for year against the year before.
func (e *Engine) Transition(ctx context.Context, year string, f resolver.Filter) (Transition, error) {
	e.record("transition", year, &f)
	ds, err := e.loadOptional(ctx, year)
	if err != nil {
		return Transition{}, err
	}
	return e.transition(ctx, ds, year, f)
}

func (e *Engine) transition(ctx context.Context, current *loader.Dataset, year string, f resolver.Filter) (Transition, error) {
	sy, err := types.ParseSchoolYear(year)
	if err != nil {
		return Transition{}, lerrors.NewValidationError(lerrors.CodeInvalidYear, err.Error())
	}
	previous, err := e.loadOptional(ctx, string(sy.Previous()))
	if err != nil {
		return Transition{}, err
	}
	if current == nil {
		current = &loader.Dataset{Year: sy}
	}
	return TransitionRates(current, previous, f), nil
}

// Trend sums enrollment for the available years around year.
func (e *Engine) Trend(ctx context.Context, year string, f resolver.Filter) ([]TrendPoint, error) {
	e.record("trend", year, &f)
	return e.trend(ctx, year, f)
}

func (e *Engine) trend(ctx context.Context, year string, f resolver.Filter) ([]TrendPoint, error) {
	available, err := e.registry.GetAvailableSchoolYears(ctx)
	if err != nil {
		return nil, err
	}
	years := TrendWindow(available, year, e.opts.TrendWindow)
	datasets, err := e.loader.LoadYears(ctx, years)
	if err != nil {
		return nil, err
	}
	return EnrollmentTrend(datasets, years, f), nil
}

// School returns the summary card for one school in year.
func (e *Engine) School(ctx context.Context, year, schoolID string) (SchoolSummary, error) {
	e.record("school", year, nil)
	ds, err := e.loader.LoadDataForYear(ctx, year)
	if err != nil {
		return SchoolSummary{}, err
	}
	s, ok := SummarizeSchool(ds, schoolID)
	if !ok {
		return SchoolSummary{}, lerrors.NewNotFoundError(lerrors.CodeSchoolNotFound,
			"school has no enrollment for "+year)
	}
	return s, nil
}

// Table returns the enrollment table for year.
func (e *Engine) Table(ctx context.Context, year string) ([]TableRow, error) {
	e.record("table", year, nil)
	ds, err := e.loadOptional(ctx, year)
	if err != nil {
		return nil, err
	}
	return EnrollmentTable(ds), nil
}

// loadOptional loads year, mapping a missing file to a nil dataset.
func (e *Engine) loadOptional(ctx context.Context, year string) (*loader.Dataset, error) {
	ds, err := e.loader.LoadDataForYear(ctx, year)
	if err != nil {
		if lerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ds, nil
}
