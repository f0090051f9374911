package enrich

import "errors"

// Config carries every derivation threshold so they are tunable and testable
// without code changes. Zero values are invalid; start from DefaultConfig.
type Config struct {
	// Risk tier cutoffs on month-over-month growth, in percent. Growth
	// strictly above the high cutoff (or strictly below the high drop
	// cutoff) is High; the medium pair works the same way; everything else
	// is Low.
	HighGrowthPct   float64
	HighDropPct     float64
	MediumGrowthPct float64
	MediumDropPct   float64

	// Anomaly flag cutoffs: a record is anomalous when its anomaly score
	// exceeds AnomalyScoreCutoff or its volatility score exceeds
	// VolatilityAnomalyCutoff.
	AnomalyScoreCutoff      float64
	VolatilityAnomalyCutoff float64

	// Volatility tier cutoff on the volatility score.
	VolatilityTierCutoff float64

	// Fallback outlier quantile on enrolments, used for the anomaly flag
	// when no anomaly or volatility scores are shipped.
	OutlierQuantile float64

	// UpdatesRatio estimates updates as a fixed fraction of enrolments when
	// the raw source ships none. Fixed rather than sampled so reruns are
	// idempotent.
	UpdatesRatio float64

	// Bounds for generated enrolment counts when the raw source ships no
	// enrolments column at all (analytics exports). Generation is seeded,
	// so reruns are reproducible.
	GeneratedEnrolmentsMin int64
	GeneratedEnrolmentsMax int64
}

func DefaultConfig() Config {
	return Config{
		HighGrowthPct:           50,
		HighDropPct:             -30,
		MediumGrowthPct:         20,
		MediumDropPct:           -10,
		AnomalyScoreCutoff:      0.6,
		VolatilityAnomalyCutoff: 2.0,
		VolatilityTierCutoff:    0.5,
		OutlierQuantile:         0.98,
		UpdatesRatio:            0.3,
		GeneratedEnrolmentsMin:  1000,
		GeneratedEnrolmentsMax:  5000,
	}
}

func (c *Config) Validate() error {
	if c.HighGrowthPct <= c.MediumGrowthPct {
		return errors.New("high growth cutoff must exceed medium growth cutoff")
	}
	if c.HighDropPct >= c.MediumDropPct {
		return errors.New("high drop cutoff must be below medium drop cutoff")
	}
	if c.OutlierQuantile <= 0 || c.OutlierQuantile >= 1 {
		return errors.New("outlier quantile must be in (0, 1)")
	}
	if c.UpdatesRatio <= 0 || c.UpdatesRatio >= 1 {
		return errors.New("updates ratio must be in (0, 1)")
	}
	if c.GeneratedEnrolmentsMin <= 0 || c.GeneratedEnrolmentsMax <= c.GeneratedEnrolmentsMin {
		return errors.New("generated enrolment bounds must be positive and ordered")
	}
	return nil
}
