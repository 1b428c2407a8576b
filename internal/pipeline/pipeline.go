// Package pipeline composes a prioritization run: it loads the sector mesh,
// case records and coverage in parallel, normalizes coverage, picks the mean
// incidence and ranks the sectors.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/machado-saude/sector-priority/internal/config"
	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/ingest"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/observability"
	"github.com/machado-saude/sector-priority/internal/priority"
	"github.com/machado-saude/sector-priority/internal/store"
)

// Source names used in drop reports, metrics and logs.
const (
	SourceSectors  = "sectors"
	SourceCases    = "cases"
	SourceCoverage = "coverage"
)

// ErrNoIncidence is returned when the weekly mean incidence is requested but
// no case survived ingestion.
var ErrNoIncidence = eris.New("pipeline: weekly mean incidence undefined: no dated cases")

// Result is the output surface of one run.
type Result struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	ComputedAt time.Time        `json:"computed_at" yaml:"computed_at"`
	Sources    model.RunSources `json:"sources" yaml:"sources"`

	Ranked  []model.RankedSector `json:"sectors" yaml:"sectors"`
	Summary priority.Summary     `json:"summary" yaml:"summary"`

	// Weekly and Cases are empty when no case source is configured.
	Weekly model.WeeklySeries `json:"weekly" yaml:"weekly"`
	Cases  []model.CaseRecord `json:"-" yaml:"-"`

	Coverage        float64       `json:"coverage" yaml:"coverage"`
	CoverageRaw     float64       `json:"coverage_raw" yaml:"coverage_raw"`
	CoverageUnit    priority.Unit `json:"coverage_unit" yaml:"coverage_unit"`
	MeanIncidence   float64       `json:"mean_incidence" yaml:"mean_incidence"`
	IncidenceSource string        `json:"incidence_source" yaml:"incidence_source"`

	Drops map[string]model.DropReport `json:"drops,omitempty" yaml:"drops,omitempty"`
}

// CoveragePercent is the normalized coverage on a 0-100 scale, for display.
func (r *Result) CoveragePercent() float64 {
	return r.Coverage * 100
}

// Dropped is the total of rows dropped across sources.
func (r *Result) Dropped() int {
	var n int
	for _, d := range r.Drops {
		n += d.Total
	}
	return n
}

// RunResult condenses the result for the run store.
func (r *Result) RunResult() *model.RunResult {
	return &model.RunResult{
		MeanIncidence: r.MeanIncidence,
		Coverage:      r.Coverage,
		CoverageRaw:   r.CoverageRaw,
		Ranked:        r.Summary.Ranked,
		Unranked:      r.Summary.Unranked,
		Dropped:       r.Dropped(),
		MaxScore:      r.Summary.MaxScore,
		ComputedAt:    r.ComputedAt,
	}
}

// Pipeline runs prioritization passes over the configured sources.
type Pipeline struct {
	cfg     *config.Config
	loader  *ingest.Loader
	store   store.Store
	metrics *observability.Metrics
}

// New creates a Pipeline. The store and metrics are optional.
func New(cfg *config.Config, loader *ingest.Loader, st store.Store, metrics *observability.Metrics) *Pipeline {
	if loader == nil {
		loader = ingest.NewLoader(fetcher.NewOpener(FetchOptions(cfg.Fetch)))
	}
	return &Pipeline{cfg: cfg, loader: loader, store: st, metrics: metrics}
}

// loaded holds what the parallel load phase produced.
type loaded struct {
	sectors     *ingest.SectorSet
	cases       *ingest.CaseSet
	coverageRaw float64
}

// Run executes one load-rank pass. Source and precondition failures abort the
// run; rows dropped during ingestion are reported in Result.Drops.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	start := clock.Now()
	sources := model.RunSources{
		Sectors:    p.cfg.Sources.Sectors,
		Cases:      p.cfg.Sources.Cases,
		Coverage:   p.cfg.Sources.Coverage,
		Population: p.cfg.Sources.Population,
	}

	runID := uuid.New().String()
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, sources)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting run",
		zap.String("sectors", sources.Sectors),
		zap.String("cases", sources.Cases),
		zap.String("coverage", sources.Coverage),
	)

	result, err := p.run(ctx, log, sources)
	if err != nil {
		p.recordFailure(ctx, log, runID, err)
		return nil, err
	}
	result.RunID = runID
	result.ComputedAt = clock.Now().UTC()

	if p.store != nil {
		if saveErr := p.store.CompleteRun(ctx, runID, result.RunResult(), result.Ranked); saveErr != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
		}
	}
	p.recordSuccess(result, clock.Since(start))

	log.Info("pipeline: run complete",
		zap.Int("ranked", result.Summary.Ranked),
		zap.Int("unranked", result.Summary.Unranked),
		zap.Int("dropped", result.Dropped()),
		zap.Float64("mean_incidence", result.MeanIncidence),
		zap.Float64("coverage", result.Coverage),
		zap.Duration("elapsed", clock.Since(start)),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, sources model.RunSources) (*Result, error) {
	unit, err := priority.ParseUnit(p.cfg.Coverage.Unit)
	if err != nil {
		return nil, err
	}

	in, err := p.load(ctx, sources)
	if err != nil {
		return nil, err
	}

	coverage, err := priority.NormalizeCoverage(in.coverageRaw, unit)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: normalize coverage from %s", sources.Coverage)
	}

	result := &Result{
		Sources:         sources,
		Coverage:        coverage,
		CoverageRaw:     in.coverageRaw,
		CoverageUnit:    unit,
		IncidenceSource: p.cfg.Priority.IncidenceSource,
		Weekly:          model.WeeklySeries{},
		Drops:           map[string]model.DropReport{SourceSectors: in.sectors.Drops},
	}
	if in.cases != nil {
		result.Cases = in.cases.Records
		result.Weekly = ingest.AggregateWeekly(in.cases.Records, WeekOptions(p.cfg.Incidence))
		result.Drops[SourceCases] = in.cases.Drops
	}

	switch p.cfg.Priority.IncidenceSource {
	case config.IncidenceWeeklyMean:
		if len(result.Weekly) == 0 {
			return nil, ErrNoIncidence
		}
		result.MeanIncidence = ingest.MeanWeeklyIncidence(result.Weekly)
	default:
		result.MeanIncidence = *p.cfg.Priority.MeanIncidence
	}

	ranked, err := priority.RankSectors(in.sectors.Sectors, result.MeanIncidence, coverage)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: rank sectors")
	}
	result.Ranked = ranked
	result.Summary = priority.Summarize(ranked)

	p.reportDrops(log, result.Drops)
	if result.Summary.Uniform && result.Summary.Ranked > 1 {
		log.Info("pipeline: every ranked sector has the same score",
			zap.Float64("score", result.Summary.MaxScore))
	}
	return result, nil
}

// load reads the three sources concurrently. The first failure cancels the rest.
func (p *Pipeline) load(ctx context.Context, sources model.RunSources) (*loaded, error) {
	sectorOpts, err := SectorOptions(p.cfg)
	if err != nil {
		return nil, err
	}
	caseOpts, err := CaseOptions(p.cfg)
	if err != nil {
		return nil, err
	}
	coverageOpts, err := CoverageOptions(p.cfg)
	if err != nil {
		return nil, err
	}

	var in loaded
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer p.observeLoad(SourceSectors, clock.Now())
		set, err := p.loader.LoadSectors(gCtx, fetcher.Source(sources.Sectors), sectorOpts)
		if err != nil {
			return err
		}
		in.sectors = set
		return nil
	})

	if sources.Cases != "" {
		g.Go(func() error {
			defer p.observeLoad(SourceCases, clock.Now())
			set, err := p.loader.LoadCaseRecords(gCtx, fetcher.Source(sources.Cases), caseOpts)
			if err != nil {
				return err
			}
			in.cases = set
			return nil
		})
	}

	g.Go(func() error {
		defer p.observeLoad(SourceCoverage, clock.Now())
		v, err := p.loader.LoadCoverage(gCtx, fetcher.Source(sources.Coverage), coverageOpts)
		if err != nil {
			return err
		}
		in.coverageRaw = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: load sources")
	}
	return &in, nil
}

func (p *Pipeline) reportDrops(log *zap.Logger, drops map[string]model.DropReport) {
	for source, report := range drops {
		if report.Total == 0 {
			continue
		}
		fields := []zap.Field{zap.String("source", source), zap.Int("total", report.Total)}
		for _, reason := range report.Reasons() {
			fields = append(fields, zap.Int(string(reason), report.ByReason[reason]))
			if p.metrics != nil {
				p.metrics.RowsDropped.WithLabelValues(source, string(reason)).Add(float64(report.ByReason[reason]))
			}
		}
		log.Warn("pipeline: rows dropped during ingestion", fields...)
	}
}

func (p *Pipeline) observeLoad(source string, started time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.SourceLoadDuration.WithLabelValues(source).Observe(clock.Since(started).Seconds())
}

func (p *Pipeline) recordSuccess(r *Result, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(elapsed.Seconds())
	p.metrics.LastRunUnix.Set(float64(r.ComputedAt.Unix()))
	p.metrics.SectorsRanked.Set(float64(r.Summary.Ranked))
	p.metrics.SectorsUnranked.Set(float64(r.Summary.Unranked))
	p.metrics.Coverage.Set(r.Coverage)
	p.metrics.MeanIncidence.Set(r.MeanIncidence)
}

func (p *Pipeline) recordFailure(ctx context.Context, log *zap.Logger, runID string, runErr error) {
	log.Error("pipeline: run failed", zap.Error(runErr))
	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
	}
	if p.store != nil {
		// the caller's context may be the reason the run failed
		if err := p.store.FailRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(err))
		}
	}
}
