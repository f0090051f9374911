// Package synth expands a single-period dataset into a synthetic multi-month
// series so trend and growth derivations have enough history to work with.
// It is a demo-data fallback: every fabricated record carries the Synthetic
// provenance flag so consumers can tell it apart from observed history.
package synth

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/enrolytics/pipeline/internal/dataset"
)

// TargetYear is the calendar year the synthetic series spans, January through
// December.
const TargetYear = 2025

const (
	perturbMin = 0.9
	perturbMax = 1.1
)

// ExpandHistory returns the dataset unchanged when it already spans more than
// one distinct month. When exactly one month is present it synthesizes twelve
// monthly snapshots of the target year: each record is replicated per month
// with its enrolments perturbed by a multiplicative factor in
// [perturbMin, perturbMax). The generator is seeded from the month index, so
// reruns produce identical output.
func ExpandHistory(ds *dataset.Dataset, log *slog.Logger) *dataset.Dataset {
	months := ds.DistinctMonths()
	if months != 1 {
		log.Debug("history present, skipping synthesis", "distinct_months", months)
		return ds
	}
	log.Warn("single month detected, synthesizing one year of history",
		"target_year", TargetYear, "base_rows", len(ds.Records))

	expanded := make([]dataset.Record, 0, len(ds.Records)*12)
	for month := time.January; month <= time.December; month++ {
		rng := rand.New(rand.NewSource(int64(month)))
		date := time.Date(TargetYear, month, 1, 0, 0, 0, 0, time.UTC)
		for _, base := range ds.Records {
			rec := base
			rec.Date = date
			rec.Synthetic = true
			factor := perturbMin + rng.Float64()*(perturbMax-perturbMin)
			rec.Enrolments = int64(float64(rec.Enrolments) * factor)
			expanded = append(expanded, rec)
		}
	}

	out := dataset.NewDataset(expanded, ds.PresentColumns())
	out.SetPresent(dataset.ColIsSynthetic)
	return out
}
