package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/enrolytics/pipeline/internal/dataset"
)

// stateForecast is one row of the optional state-level forecast file
// (columns: state, month, forecast, lower, upper).
type stateForecast struct {
	State    string
	Month    time.Time
	Forecast float64
	Lower    float64
	Upper    float64
}

// mergeStateForecast left-joins the state forecast file onto the dataset by
// state, keeping only the latest forecast per state when duplicates exist.
// Any failure is returned for the caller to absorb as a warning.
func (p *Pipeline) mergeStateForecast(ds *dataset.Dataset, report *Report) error {
	path := p.cfg.ForecastPath
	if path == "" {
		var err error
		path, err = DiscoverForecast(p.cfg.DataDir)
		if err != nil {
			return errors.New("no state forecast file configured or discovered")
		}
	}

	forecasts, err := readStateForecasts(path)
	if err != nil {
		return err
	}
	if len(forecasts) == 0 {
		return fmt.Errorf("state forecast file %s has no usable rows", path)
	}

	latest := make(map[string]stateForecast, len(forecasts))
	for _, f := range forecasts {
		if cur, ok := latest[f.State]; !ok || f.Month.After(cur.Month) {
			latest[f.State] = f
		}
	}

	matched := 0
	for i := range ds.Records {
		f, ok := latest[ds.Records[i].State]
		if !ok {
			continue
		}
		ds.Records[i].HasStateForecast = true
		ds.Records[i].StateForecast = f.Forecast
		ds.Records[i].StateLower = f.Lower
		ds.Records[i].StateUpper = f.Upper
		matched++
	}
	ds.SetPresent(dataset.ColStateForecast, dataset.ColStateLower, dataset.ColStateUpper)

	report.ForecastMerged = true
	p.log.Info("state forecast merged", "path", path, "states", len(latest), "rows_matched", matched)
	return nil
}

func readStateForecasts(path string) ([]stateForecast, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state forecast file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read state forecast header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, c := range header {
		idx[strings.ToLower(strings.TrimSpace(c))] = i
	}
	stateIdx, ok := idx["state"]
	if !ok {
		return nil, errors.New("state forecast file has no state column")
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	num := func(row []string, col string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(field(row, col)), 64)
		if err != nil {
			return 0
		}
		return v
	}

	var out []stateForecast
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read state forecast row: %w", err)
		}
		if stateIdx >= len(row) || strings.TrimSpace(row[stateIdx]) == "" {
			continue
		}
		f := stateForecast{
			State:    strings.TrimSpace(row[stateIdx]),
			Forecast: num(row, "forecast"),
			Lower:    num(row, "lower"),
			Upper:    num(row, "upper"),
		}
		if month, err := dataset.ParseDate(field(row, "month")); err == nil {
			f.Month = month
		}
		out = append(out, f)
	}
	return out, nil
}
