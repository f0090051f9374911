// Package pipeline orchestrates one batch run: read and normalize the raw
// dataset, synthesize history when the source spans a single month, derive
// every analytics field, best-effort merge the optional state forecast, and
// atomically write the enriched CSV.
//
// Fatal conditions (missing input, missing identity columns) abort the run
// before any output is written. Everything else is absorbed with a fallback
// and surfaced as a warning in the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/enrolytics/pipeline/internal/dataset"
	"github.com/enrolytics/pipeline/internal/enrich"
	"github.com/enrolytics/pipeline/internal/synth"
)

type Option func(*Pipeline)

// WithLogger sets the run logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithClock sets the clock used for run timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithConfig sets the file locations for the run.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithEnrichConfig overrides the derivation thresholds.
func WithEnrichConfig(cfg enrich.Config) Option {
	return func(p *Pipeline) { p.enrichCfg = cfg }
}

// WithSynthesis enables or disables the single-month history synthesizer.
func WithSynthesis(enabled bool) Option {
	return func(p *Pipeline) { p.synthesize = enabled }
}

type Pipeline struct {
	log        *slog.Logger
	clock      clockwork.Clock
	cfg        Config
	enrichCfg  enrich.Config
	synthesize bool
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		log:        slog.Default(),
		clock:      clockwork.NewRealClock(),
		cfg:        ConfigFromEnv(),
		enrichCfg:  enrich.DefaultConfig(),
		synthesize: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report summarizes one pipeline run for the audit log.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration

	RawPath    string
	OutputPath string

	RowsIn            int
	RowsOut           int
	Coercions         int
	DuplicatesDropped int
	Synthesized       bool
	ForecastMerged    bool
	Warnings          []string
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Run executes one batch pass and returns the run report. On fatal errors no
// output file is touched.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	report := &Report{
		StartedAt:  p.clock.Now(),
		OutputPath: p.cfg.OutputPath,
	}

	rawPath := p.cfg.RawPath
	if rawPath == "" {
		var err error
		rawPath, err = DiscoverRaw(p.cfg.DataDir)
		if err != nil {
			return nil, err
		}
	}
	report.RawPath = rawPath

	p.log.Info("reading raw dataset", "path", rawPath)
	ds, decodeReport, err := dataset.ReadCSV(rawPath)
	if err != nil {
		if errors.Is(err, dataset.ErrMissingInput) {
			return nil, fmt.Errorf("raw dataset not found (set ENROL_RAW_PATH or place a *master*.csv in the data directory): %w", err)
		}
		return nil, err
	}
	report.RowsIn = decodeReport.Rows
	report.Coercions = decodeReport.Coercions
	if decodeReport.Coercions > 0 {
		report.warnf("%d values could not be parsed and were coerced", decodeReport.Coercions)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.synthesize {
		before := len(ds.Records)
		ds = synth.ExpandHistory(ds, p.log)
		if len(ds.Records) != before {
			report.Synthesized = true
			report.warnf("single-month input expanded to %d synthetic rows", len(ds.Records))
		}
	}

	enricher, err := enrich.New(p.log, p.enrichCfg)
	if err != nil {
		return nil, err
	}
	enrichResult, err := enricher.Enrich(ds)
	if err != nil {
		return nil, fmt.Errorf("enrichment failed: %w", err)
	}
	report.DuplicatesDropped = enrichResult.DuplicatesDropped
	if enrichResult.EnrolmentsGenerated {
		report.warnf("raw source shipped no enrolments column; values were generated")
	}
	if enrichResult.UpdatesEstimated {
		report.warnf("raw source shipped no updates column; values were estimated")
	}

	if err := p.mergeStateForecast(ds, report); err != nil {
		// Best effort: the enriched dataset is still produced without the
		// optional forecast columns.
		report.warnf("state forecast merge skipped: %v", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := dataset.WriteCSV(p.cfg.OutputPath, ds); err != nil {
		return nil, fmt.Errorf("failed to write enriched dataset: %w", err)
	}
	report.RowsOut = len(ds.Records)
	report.Duration = p.clock.Since(report.StartedAt)

	p.log.Info("pipeline run complete",
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"coercions", report.Coercions,
		"duplicates_dropped", report.DuplicatesDropped,
		"synthesized", report.Synthesized,
		"forecast_merged", report.ForecastMerged,
		"output", report.OutputPath,
		"duration", report.Duration)
	return report, nil
}
