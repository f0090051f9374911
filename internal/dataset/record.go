// Package dataset defines the canonical enrolment record model, the raw
// schema normalizer, and the CSV codec used on both ends of the pipeline.
//
// A record is one district for one reporting period. Raw files arrive in one
// of several historical dialects; the normalizer maps every dialect onto the
// canonical column set before decoding.
package dataset

import (
	"fmt"
	"sort"
	"time"
)

type RiskTier string

const (
	RiskLow    RiskTier = "Low"
	RiskMedium RiskTier = "Medium"
	RiskHigh   RiskTier = "High"
)

type VolatilityTier string

const (
	VolatilityStable   VolatilityTier = "Stable"
	VolatilityModerate VolatilityTier = "Moderate"
	VolatilityHigh     VolatilityTier = "High"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Record is one district x one reporting period, with raw counts and every
// derived analytics field. Derived fields are zero-valued until the enricher
// has run.
type Record struct {
	State    string
	District string
	Date     time.Time // month granularity

	Enrolments int64
	Updates    int64

	GrowthRate       float64 // MEGR, percent month-over-month
	RiskTier         RiskTier
	VolatilityTier   VolatilityTier
	Underperformance bool
	IsAnomaly        bool
	AnomalyScore     float64 // ARS, in [0,1]
	VolatilityScore  float64 // EVI
	UnderperfScore   float64 // UPI score, feeds confidence
	ConfidenceScore  float64 // in [0,100]
	Priority         Priority
	ForecastNext     float64 // next-period projection for this series

	// Synthetic marks records fabricated by the history synthesizer so
	// consumers can distinguish demo data from observed history.
	Synthetic bool

	// State-level forecast columns, populated by a best-effort left join
	// against the optional state forecast file.
	HasStateForecast bool
	StateForecast    float64
	StateLower       float64
	StateUpper       float64
}

// Key identifies a record within a dataset. Uniqueness is enforced by
// Dataset.Dedupe.
func (r Record) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.State, r.District, r.Date.Format("2006-01"))
}

// Dataset is an in-memory table of records plus the set of canonical columns
// that were actually present in the raw source. Column presence is tracked at
// table level, matching the tabular sources the pipeline ingests: a column is
// either shipped for every row or for none.
type Dataset struct {
	Records []Record
	present map[string]bool
}

func NewDataset(records []Record, presentColumns []string) *Dataset {
	present := make(map[string]bool, len(presentColumns))
	for _, c := range presentColumns {
		present[c] = true
	}
	return &Dataset{Records: records, present: present}
}

// Has reports whether the named canonical column was present in the source.
func (d *Dataset) Has(column string) bool {
	return d.present[column]
}

// SetPresent marks a canonical column as populated, for stages that fill in
// columns the raw source lacked.
func (d *Dataset) SetPresent(columns ...string) {
	if d.present == nil {
		d.present = make(map[string]bool)
	}
	for _, c := range columns {
		d.present[c] = true
	}
}

// PresentColumns returns the populated canonical columns in stable order.
func (d *Dataset) PresentColumns() []string {
	cols := make([]string, 0, len(d.present))
	for c := range d.present {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Sort orders records by (state, district, date) ascending. Growth-rate
// derivation depends on this ordering.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Records, func(i, j int) bool {
		a, b := d.Records[i], d.Records[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.District != b.District {
			return a.District < b.District
		}
		return a.Date.Before(b.Date)
	})
}

// Dedupe drops records whose (state, district, date) key was already seen,
// keeping the first occurrence. Returns the number of rows dropped.
func (d *Dataset) Dedupe() int {
	seen := make(map[string]bool, len(d.Records))
	kept := d.Records[:0]
	for _, r := range d.Records {
		k := r.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, r)
	}
	dropped := len(d.Records) - len(kept)
	d.Records = kept
	return dropped
}

// DistinctMonths returns the number of distinct calendar months in the
// dataset.
func (d *Dataset) DistinctMonths() int {
	months := make(map[string]bool)
	for _, r := range d.Records {
		months[r.Date.Format("2006-01")] = true
	}
	return len(months)
}

// ParseRiskTier normalizes the historical risk-tier vocabularies ("High
// Risk", "High") onto the short enum. Unrecognized labels are reported so the
// caller can apply the default.
func ParseRiskTier(s string) (RiskTier, bool) {
	switch s {
	case "Low", "Low Risk":
		return RiskLow, true
	case "Medium", "Medium Risk":
		return RiskMedium, true
	case "High", "High Risk":
		return RiskHigh, true
	}
	return "", false
}
