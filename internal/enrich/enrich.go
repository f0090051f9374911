// Package enrich computes every derived analytics field from a normalized
// dataset: growth rate, risk tier, volatility tier, underperformance and
// anomaly flags, confidence score, priority, and the per-record next-period
// forecast. All derivations are deterministic and free of I/O.
package enrich

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/enrolytics/pipeline/internal/dataset"
	"github.com/enrolytics/pipeline/internal/stats"
)

// generatedEnrolmentsSeed fixes the generator for datasets that ship no
// enrolments column, so repeated runs agree.
const generatedEnrolmentsSeed = 42

type Enricher struct {
	log *slog.Logger
	cfg Config
}

func New(log *slog.Logger, cfg Config) (*Enricher, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid enrich config: %w", err)
	}
	return &Enricher{log: log, cfg: cfg}, nil
}

// Result reports what enrichment did to the table shape.
type Result struct {
	DuplicatesDropped   int
	EnrolmentsGenerated bool
	UpdatesEstimated    bool
}

// Enrich derives every analytics field in place. Records end up sorted by
// (state, district, date); duplicates on that key are dropped keep-first
// before any derivation.
func (e *Enricher) Enrich(ds *dataset.Dataset) (*Result, error) {
	res := &Result{}
	res.DuplicatesDropped = ds.Dedupe()
	ds.Sort()

	if !ds.Has(dataset.ColEnrolments) {
		e.generateEnrolments(ds)
		res.EnrolmentsGenerated = true
	}
	if !ds.Has(dataset.ColUpdates) {
		e.estimateUpdates(ds)
		res.UpdatesEstimated = true
	}

	e.deriveGrowth(ds)
	e.deriveTiers(ds)
	e.deriveAnomalies(ds)
	e.derivePriorities(ds)

	ds.SetPresent(
		dataset.ColMEGR,
		dataset.ColRiskLevel,
		dataset.ColVolatilityLevel,
		dataset.ColUnderperfFlag,
		dataset.ColConfidenceScore,
		dataset.ColIsAnomaly,
		dataset.ColPriority,
		dataset.ColForecastNext,
	)

	e.log.Debug("enrichment complete",
		"rows", len(ds.Records),
		"duplicates_dropped", res.DuplicatesDropped,
		"enrolments_generated", res.EnrolmentsGenerated,
		"updates_estimated", res.UpdatesEstimated)
	return res, nil
}

func (e *Enricher) generateEnrolments(ds *dataset.Dataset) {
	rng := rand.New(rand.NewSource(generatedEnrolmentsSeed))
	span := e.cfg.GeneratedEnrolmentsMax - e.cfg.GeneratedEnrolmentsMin
	for i := range ds.Records {
		ds.Records[i].Enrolments = e.cfg.GeneratedEnrolmentsMin + rng.Int63n(span)
	}
	ds.SetPresent(dataset.ColEnrolments)
}

func (e *Enricher) estimateUpdates(ds *dataset.Dataset) {
	for i := range ds.Records {
		ds.Records[i].Updates = int64(float64(ds.Records[i].Enrolments) * e.cfg.UpdatesRatio)
	}
	ds.SetPresent(dataset.ColUpdates)
}

// deriveGrowth computes MEGR within each (state, district) partition. The
// records must already be sorted; the first period of a partition, and any
// period following a zero-enrolment one, gets growth 0.
func (e *Enricher) deriveGrowth(ds *dataset.Dataset) {
	if ds.Has(dataset.ColMEGR) {
		return // raw source already ships a growth rate
	}
	var prevState, prevDistrict string
	var prev int64
	var first bool
	for i := range ds.Records {
		r := &ds.Records[i]
		first = r.State != prevState || r.District != prevDistrict
		if first || prev == 0 {
			r.GrowthRate = 0
		} else {
			g := (float64(r.Enrolments) - float64(prev)) / float64(prev) * 100
			r.GrowthRate = math.Round(g*100) / 100
		}
		prevState, prevDistrict, prev = r.State, r.District, r.Enrolments
	}
}

func (e *Enricher) riskFromGrowth(g float64) dataset.RiskTier {
	switch {
	case g > e.cfg.HighGrowthPct || g < e.cfg.HighDropPct:
		return dataset.RiskHigh
	case g > e.cfg.MediumGrowthPct || g < e.cfg.MediumDropPct:
		return dataset.RiskMedium
	}
	return dataset.RiskLow
}

func (e *Enricher) deriveTiers(ds *dataset.Dataset) {
	hasRisk := ds.Has(dataset.ColRiskLevel)
	hasVolScore := ds.Has(dataset.ColVolatilityScore)
	for i := range ds.Records {
		r := &ds.Records[i]

		if hasRisk {
			// Precomputed labels pass through; invalid ones were cleared
			// during decoding and default to Medium.
			if r.RiskTier == "" {
				r.RiskTier = dataset.RiskMedium
			}
		} else {
			r.RiskTier = e.riskFromGrowth(r.GrowthRate)
		}

		r.Underperformance = r.GrowthRate < 0

		switch {
		case hasVolScore && r.VolatilityScore > e.cfg.VolatilityTierCutoff:
			r.VolatilityTier = dataset.VolatilityHigh
		case !hasVolScore && r.RiskTier == dataset.RiskHigh:
			r.VolatilityTier = dataset.VolatilityHigh
		default:
			r.VolatilityTier = dataset.VolatilityStable
		}

		underperf := r.UnderperfScore
		r.ConfidenceScore = stats.Round1(stats.Clip(
			(1-underperf)*50+(50-math.Abs(r.GrowthRate)*10), 0, 100))

		r.ForecastNext = math.Max(0, float64(r.Enrolments)*(1+r.GrowthRate/100))
	}
}

// deriveAnomalies flags records by score cutoffs when the raw source ships
// anomaly or volatility scores, and otherwise falls back to an enrolment
// outlier test against the configured quantile over the whole dataset.
func (e *Enricher) deriveAnomalies(ds *dataset.Dataset) {
	if ds.Has(dataset.ColAnomalyScore) || ds.Has(dataset.ColVolatilityScore) {
		for i := range ds.Records {
			r := &ds.Records[i]
			r.IsAnomaly = r.AnomalyScore > e.cfg.AnomalyScoreCutoff ||
				r.VolatilityScore > e.cfg.VolatilityAnomalyCutoff
		}
		return
	}

	values := make([]float64, len(ds.Records))
	for i, r := range ds.Records {
		values[i] = float64(r.Enrolments)
	}
	threshold := stats.Quantile(values, e.cfg.OutlierQuantile)
	for i := range ds.Records {
		ds.Records[i].IsAnomaly = float64(ds.Records[i].Enrolments) > threshold
	}
}

// derivePriorities: Low by default, Medium for medium risk, High when the
// risk tier is High or the record is anomalous. High risk always dominates.
func (e *Enricher) derivePriorities(ds *dataset.Dataset) {
	for i := range ds.Records {
		r := &ds.Records[i]
		switch {
		case r.RiskTier == dataset.RiskHigh || r.IsAnomaly:
			r.Priority = dataset.PriorityHigh
		case r.RiskTier == dataset.RiskMedium:
			r.Priority = dataset.PriorityMedium
		default:
			r.Priority = dataset.PriorityLow
		}
	}
}
