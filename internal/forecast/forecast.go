// Package forecast projects a daily enrolment series forward with a moving
// average trend, a scenario multiplier, bounded sine seasonality, and a
// widening z confidence band. It is a planning heuristic, not a trained
// model.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/enrolytics/pipeline/internal/dataset"
	"github.com/enrolytics/pipeline/internal/stats"
)

type Scenario string

const (
	ScenarioConservative Scenario = "Conservative"
	ScenarioBaseline     Scenario = "Baseline"
	ScenarioOptimistic   Scenario = "Optimistic"
)

var scenarioFactors = map[Scenario]float64{
	ScenarioConservative: 0.85,
	ScenarioBaseline:     1.0,
	ScenarioOptimistic:   1.15,
}

// Factor returns the growth multiplier for the scenario.
func (s Scenario) Factor() (float64, error) {
	f, ok := scenarioFactors[s]
	if !ok {
		return 0, fmt.Errorf("invalid scenario: %q", s)
	}
	return f, nil
}

var zScores = map[int]float64{
	90: 1.645,
	95: 1.96,
	99: 2.576,
}

const (
	trendWindow       = 7
	seasonalPeriod    = 30
	seasonalAmplitude = 0.1
)

type Options struct {
	HorizonDays     int
	Scenario        Scenario
	ConfidenceLevel int // one of 90, 95, 99
}

func DefaultOptions() Options {
	return Options{
		HorizonDays:     90,
		Scenario:        ScenarioBaseline,
		ConfidenceLevel: 95,
	}
}

func (o *Options) Validate() error {
	if o.HorizonDays < 1 {
		return errors.New("horizon must be at least one day")
	}
	if _, err := o.Scenario.Factor(); err != nil {
		return err
	}
	if _, ok := zScores[o.ConfidenceLevel]; !ok {
		return fmt.Errorf("confidence level must be 90, 95, or 99, got %d", o.ConfidenceLevel)
	}
	return nil
}

// Observation is one aggregated historical value: total enrolments across all
// records for one date.
type Observation struct {
	Date  time.Time
	Total float64
}

// Point is one projected future date with its confidence band. Forecast and
// Lower are floored at zero; Upper is unbounded.
type Point struct {
	Date     time.Time
	Forecast float64
	Lower    float64
	Upper    float64
}

// AggregateDaily sums enrolments by date across records and returns the
// series sorted ascending.
func AggregateDaily(records []dataset.Record) []Observation {
	totals := make(map[time.Time]float64)
	for _, r := range records {
		totals[r.Date] += float64(r.Enrolments)
	}
	out := make([]Observation, 0, len(totals))
	for date, total := range totals {
		out = append(out, Observation{Date: date, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Generate projects the historical series HorizonDays into the future.
//
// The smoothed trend is a trailing moving average (window min(7, n));
// growth per step is the MA endpoint delta divided by the series length. Each
// future step applies the scenario factor, then a sine seasonal perturbation
// bounded at 10% of the step value, then a confidence margin of
// z * stddev(history) * sqrt(1 + i/n).
//
// A history with fewer than two points has no defined trend and degenerates
// to a flat line at the single observed value.
func Generate(history []Observation, opts Options) ([]Point, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid forecast options: %w", err)
	}
	if len(history) == 0 {
		return nil, errors.New("historical series is empty")
	}

	sorted := append([]Observation(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	values := make([]float64, len(sorted))
	for i, o := range sorted {
		values[i] = o.Total
	}
	lastDate := sorted[len(sorted)-1].Date

	if len(sorted) < 2 {
		// Degenerate: flat line at the observed value, no band.
		flat := math.Max(0, values[0])
		out := make([]Point, opts.HorizonDays)
		for i := range out {
			out[i] = Point{
				Date:     lastDate.AddDate(0, 0, i+1),
				Forecast: flat,
				Lower:    flat,
				Upper:    flat,
			}
		}
		return out, nil
	}

	window := trendWindow
	if len(values) < window {
		window = len(values)
	}
	ma := stats.MovingAverage(values, window)
	base := ma[len(ma)-1]
	growthPerStep := (ma[len(ma)-1] - ma[0]) / float64(len(values))

	factor, _ := opts.Scenario.Factor()
	z := zScores[opts.ConfidenceLevel]
	stddev := stats.StdDev(values)
	n := float64(len(values))

	out := make([]Point, opts.HorizonDays)
	for step := 1; step <= opts.HorizonDays; step++ {
		trend := (base + growthPerStep*float64(step)) * factor
		seasonal := math.Sin(2*math.Pi*float64(step)/seasonalPeriod) * seasonalAmplitude * trend
		value := trend + seasonal
		margin := z * stddev * math.Sqrt(1+float64(step)/n)

		out[step-1] = Point{
			Date:     lastDate.AddDate(0, 0, step),
			Forecast: math.Max(0, value),
			Lower:    math.Max(0, value-margin),
			Upper:    value + margin,
		}
	}
	return out, nil
}

// MonthlyPoint is the calendar-month rollup of a daily projection.
type MonthlyPoint struct {
	Month    time.Time // first of month
	Forecast float64
	Lower    float64
	Upper    float64
}

// MonthlyRollup sums a daily projection into calendar months, ordered
// ascending.
func MonthlyRollup(points []Point) []MonthlyPoint {
	byMonth := make(map[time.Time]*MonthlyPoint)
	for _, p := range points {
		month := time.Date(p.Date.Year(), p.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		m, ok := byMonth[month]
		if !ok {
			m = &MonthlyPoint{Month: month}
			byMonth[month] = m
		}
		m.Forecast += p.Forecast
		m.Lower += p.Lower
		m.Upper += p.Upper
	}
	out := make([]MonthlyPoint, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// AllScenarios generates the projection once per scenario with otherwise
// identical options, for side-by-side comparison.
func AllScenarios(history []Observation, opts Options) (map[Scenario][]Point, error) {
	out := make(map[Scenario][]Point, len(scenarioFactors))
	for scenario := range scenarioFactors {
		o := opts
		o.Scenario = scenario
		points, err := Generate(history, o)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario, err)
		}
		out[scenario] = points
	}
	return out, nil
}
