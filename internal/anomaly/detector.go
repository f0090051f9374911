// Package anomaly scores and categorizes anomalous records. Detection is a
// pluggable strategy: rule-based threshold checks, a statistical IQR outlier
// test with tunable sensitivity, or a combined mode that prefers precomputed
// anomaly scores and falls back to the other two. Severity scoring is a pure
// function of the record and is identical regardless of which detector set
// the anomaly flag.
package anomaly

import (
	"fmt"

	"github.com/enrolytics/pipeline/internal/dataset"
	"github.com/enrolytics/pipeline/internal/stats"
)

type Mode string

const (
	ModeRule        Mode = "rule"
	ModeStatistical Mode = "statistical"
	ModeCombined    Mode = "combined"
)

// Config selects and tunes a detector.
type Config struct {
	Mode Mode

	// Sensitivity in [1,10]; higher flags more anomalies. Used by the
	// statistical and combined modes.
	Sensitivity int

	// Rule-mode cutoffs, matching the enrichment defaults.
	AnomalyScoreCutoff      float64
	VolatilityAnomalyCutoff float64
	OutlierQuantile         float64
}

func DefaultConfig() Config {
	return Config{
		Mode:                    ModeCombined,
		Sensitivity:             5,
		AnomalyScoreCutoff:      0.6,
		VolatilityAnomalyCutoff: 2.0,
		OutlierQuantile:         0.98,
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRule, ModeStatistical, ModeCombined:
	default:
		return fmt.Errorf("invalid detection mode: %q", c.Mode)
	}
	if c.Sensitivity < 1 || c.Sensitivity > 10 {
		return fmt.Errorf("sensitivity must be in [1,10], got %d", c.Sensitivity)
	}
	return nil
}

// Detector sets the anomaly flag on every record of a dataset.
type Detector interface {
	Detect(ds *dataset.Dataset)
	String() string
}

func NewDetector(cfg Config) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeRule:
		return &RuleDetector{cfg: cfg}, nil
	case ModeStatistical:
		return &StatisticalDetector{cfg: cfg}, nil
	default:
		return &ScoreDetector{cfg: cfg}, nil
	}
}

// RuleDetector flags records whose scores breach fixed thresholds, falling
// back to an enrolment quantile test when the dataset ships no scores.
type RuleDetector struct {
	cfg Config
}

func (d *RuleDetector) String() string { return string(ModeRule) }

func (d *RuleDetector) Detect(ds *dataset.Dataset) {
	if ds.Has(dataset.ColAnomalyScore) || ds.Has(dataset.ColVolatilityScore) {
		for i := range ds.Records {
			r := &ds.Records[i]
			r.IsAnomaly = r.AnomalyScore > d.cfg.AnomalyScoreCutoff ||
				r.VolatilityScore > d.cfg.VolatilityAnomalyCutoff
		}
		ds.SetPresent(dataset.ColIsAnomaly)
		return
	}
	threshold := stats.Quantile(enrolments(ds), d.cfg.OutlierQuantile)
	for i := range ds.Records {
		ds.Records[i].IsAnomaly = float64(ds.Records[i].Enrolments) > threshold
	}
	ds.SetPresent(dataset.ColIsAnomaly)
}

// StatisticalDetector flags records whose enrolments fall outside
// [Q1 - k*IQR, Q3 + k*IQR] with k shrinking as sensitivity grows.
type StatisticalDetector struct {
	cfg Config
}

func (d *StatisticalDetector) String() string { return string(ModeStatistical) }

// Multiplier returns the IQR fence multiplier for the configured sensitivity:
// 1.5 at maximum sensitivity, widening by 0.3 per step below it.
func (d *StatisticalDetector) Multiplier() float64 {
	return 1.5 + float64(10-d.cfg.Sensitivity)*0.3
}

func (d *StatisticalDetector) Detect(ds *dataset.Dataset) {
	values := enrolments(ds)
	q1 := stats.Quantile(values, 0.25)
	q3 := stats.Quantile(values, 0.75)
	iqr := q3 - q1
	k := d.Multiplier()
	lower := q1 - k*iqr
	upper := q3 + k*iqr
	for i := range ds.Records {
		v := float64(ds.Records[i].Enrolments)
		ds.Records[i].IsAnomaly = v < lower || v > upper
	}
	ds.SetPresent(dataset.ColIsAnomaly)
}

// ScoreDetector prefers a precomputed anomaly score with a quantile threshold
// adjusted by sensitivity, falling back to the statistical test when the
// dataset ships no scores.
type ScoreDetector struct {
	cfg Config
}

func (d *ScoreDetector) String() string { return string(ModeCombined) }

// Threshold quantile slides from 0.95 at the default sensitivity of 5, by
// 0.05 per sensitivity step.
func (d *ScoreDetector) thresholdQuantile() float64 {
	return stats.Clip(0.95-float64(d.cfg.Sensitivity-5)*0.05, 0, 1)
}

func (d *ScoreDetector) Detect(ds *dataset.Dataset) {
	if !ds.Has(dataset.ColAnomalyScore) {
		fallback := &StatisticalDetector{cfg: d.cfg}
		fallback.Detect(ds)
		return
	}
	scores := make([]float64, len(ds.Records))
	for i, r := range ds.Records {
		scores[i] = r.AnomalyScore
	}
	threshold := stats.Quantile(scores, d.thresholdQuantile())
	for i := range ds.Records {
		ds.Records[i].IsAnomaly = ds.Records[i].AnomalyScore > threshold
	}
	ds.SetPresent(dataset.ColIsAnomaly)
}

func enrolments(ds *dataset.Dataset) []float64 {
	values := make([]float64, len(ds.Records))
	for i, r := range ds.Records {
		values[i] = float64(r.Enrolments)
	}
	return values
}
