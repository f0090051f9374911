package anomaly

import "github.com/enrolytics/pipeline/internal/dataset"

type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "Low"
	SeverityMedium   SeverityLevel = "Medium"
	SeverityHigh     SeverityLevel = "High"
	SeverityCritical SeverityLevel = "Critical"
)

// Severity weights. The weighted sum is capped at 100.
const (
	riskHighWeight   = 40
	riskMediumWeight = 20
	anomalyScoreMax  = 30
	volatilityMax    = 20
	underperfWeight  = 10
)

// SeverityScore ranks a record's urgency on [0,100] from its risk tier,
// anomaly score, volatility score, and underperformance flag. It is a pure
// function of the record: identical inputs always produce identical output,
// regardless of which detection mode set the anomaly flag.
func SeverityScore(r dataset.Record) float64 {
	var score float64
	switch r.RiskTier {
	case dataset.RiskHigh:
		score += riskHighWeight
	case dataset.RiskMedium:
		score += riskMediumWeight
	}

	if c := r.AnomalyScore * 30; c < anomalyScoreMax {
		score += c
	} else {
		score += anomalyScoreMax
	}
	if c := r.VolatilityScore * 10; c < volatilityMax {
		score += c
	} else {
		score += volatilityMax
	}
	if r.Underperformance {
		score += underperfWeight
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Severity levels: >=70 Critical, >=40 High, >=20 Medium, else Low.
func SeverityLevelFor(score float64) SeverityLevel {
	switch {
	case score >= 70:
		return SeverityCritical
	case score >= 40:
		return SeverityHigh
	case score >= 20:
		return SeverityMedium
	}
	return SeverityLow
}
