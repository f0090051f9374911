package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical column names. The enriched CSV is written with exactly these
// headers; consumers depend on them staying stable.
const (
	ColState           = "State"
	ColDistrict        = "District"
	ColDate            = "Date"
	ColEnrolments      = "Enrolments"
	ColUpdates         = "Updates"
	ColRiskLevel       = "Risk_Level"
	ColMEGR            = "MEGR"
	ColIsAnomaly       = "Is_Anomaly"
	ColAnomalyScore    = "Anomaly_Score"
	ColVolatilityScore = "Volatility_Score"
	ColVolatilityLevel = "Volatility_Level"
	ColUnderperfScore  = "Underperformance_Score"
	ColUnderperfFlag   = "Underperformance_Flag"
	ColConfidenceScore = "Confidence_Score"
	ColPriority        = "Priority"
	ColForecastNext    = "Forecast_Next_Month"
	ColIsSynthetic     = "Is_Synthetic"
	ColMonthYear       = "Month_Year"
	ColYear            = "Year"
	ColMonth           = "Month"
	ColStateForecast   = "State_Forecast"
	ColStateLower      = "State_Forecast_Lower"
	ColStateUpper      = "State_Forecast_Upper"
)

// columnAliases maps every known raw column name, across the historical
// dialects, onto its canonical name. Lookup is case-insensitive. Unknown
// columns pass through unchanged.
//
// Dialects covered:
//   - analytics export: state, district, latest_month, Risk_Tier,
//     MEGR_latest, ARS_latest, EVI_latest, UPI_score_latest, UPI_flag_latest
//   - monthly ingest: state, district, month, total_enrolments
//   - dashboard: already-capitalized canonical names
var columnAliases = map[string]string{
	"state":                 ColState,
	"district":              ColDistrict,
	"latest_month":          ColDate,
	"month":                 ColDate,
	"date":                  ColDate,
	"total_enrolments":      ColEnrolments,
	"enrolments":            ColEnrolments,
	"updates":               ColUpdates,
	"risk_tier":             ColRiskLevel,
	"risk_level":            ColRiskLevel,
	"risk level":            ColRiskLevel,
	"megr_latest":           ColMEGR,
	"megr":                  ColMEGR,
	"megr (%)":              ColMEGR,
	"ars_latest":            ColAnomalyScore,
	"anomaly_score":         ColAnomalyScore,
	"evi_latest":            ColVolatilityScore,
	"volatility_score":      ColVolatilityScore,
	"volatility_level":      ColVolatilityLevel,
	"volatility level":      ColVolatilityLevel,
	"upi_score_latest":      ColUnderperfScore,
	"upi_flag_latest":       ColUnderperfFlag,
	"underperformance_flag": ColUnderperfFlag,
	"underperformance flag": ColUnderperfFlag,
	"is_anomaly":            ColIsAnomaly,
	"confidence_score":      ColConfidenceScore,
	"priority":              ColPriority,
	"forecast":              ColForecastNext,
	"forecast_next_month":   ColForecastNext,
	"is_synthetic":          ColIsSynthetic,
	"state_forecast":        ColStateForecast,
	"state_forecast_lower":  ColStateLower,
	"state_forecast_upper":  ColStateUpper,
}

// identityColumns must survive normalization for the pipeline to proceed.
var identityColumns = []string{ColState, ColDistrict, ColDate}

// SchemaError reports identity columns that are absent after normalization.
// It is fatal: downstream stages short-circuit rather than produce partial
// output.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("raw schema is missing identity columns %v (found: %v)",
		e.Missing, e.Found)
}

// NormalizeHeader maps a raw header row onto canonical column names. Unknown
// columns pass through unchanged. Returns a SchemaError if any identity
// column is absent after mapping.
func NormalizeHeader(raw []string) ([]string, error) {
	out := make([]string, len(raw))
	have := make(map[string]bool, len(raw))
	for i, name := range raw {
		trimmed := strings.TrimSpace(name)
		canonical, ok := columnAliases[strings.ToLower(trimmed)]
		if !ok || have[canonical] {
			// Unknown columns pass through; so does a second column that
			// would alias onto an already-claimed canonical name (e.g. a
			// derived "Month" column next to "Date").
			canonical = trimmed
		}
		out[i] = canonical
		have[canonical] = true
	}

	var missing []string
	for _, c := range identityColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		found := make([]string, 0, len(have))
		for c := range have {
			found = append(found, c)
		}
		sort.Strings(found)
		return nil, &SchemaError{Missing: missing, Found: found}
	}
	return out, nil
}
