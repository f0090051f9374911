package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMissingInput indicates the raw source file is absent. Fatal for the run.
var ErrMissingInput = errors.New("input file not found")

// DecodeReport counts the non-fatal value coercions applied while decoding,
// for the run log. Coerced values never block output.
type DecodeReport struct {
	Rows      int
	Coercions int
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"Jan 2006",
}

// ParseDate accepts the date formats seen across raw dataset vintages and
// truncates to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ParseBool accepts {true, 1, yes} case-insensitively as true; everything
// else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// FormatBool serializes booleans as the literal True/False tokens the
// dashboard's permissive parser reads back.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ReadCSV reads a raw delimited file, normalizes its header onto the
// canonical schema, and decodes records. Unparseable numeric and boolean
// values are coerced to their zero value and counted in the report;
// unparseable dates drop the row (identity would be meaningless) and count as
// a coercion too.
func ReadCSV(path string) (*Dataset, *DecodeReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeCSV(f)
}

// DecodeCSV decodes a raw table from r. See ReadCSV.
func DecodeCSV(r io.Reader) (*Dataset, *DecodeReport, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	rawHeader, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	header, err := NormalizeHeader(rawHeader)
	if err != nil {
		return nil, nil, err
	}

	idx := make(map[string]int, len(header))
	for i, c := range header {
		idx[c] = i
	}

	report := &DecodeReport{}
	field := func(row []string, col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}
	num := func(row []string, col string) float64 {
		s, ok := field(row, col)
		if !ok {
			return 0
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			report.Coercions++
			return 0
		}
		return v
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row: %w", err)
		}
		report.Rows++

		state, _ := field(row, ColState)
		district, _ := field(row, ColDistrict)
		dateStr, _ := field(row, ColDate)
		date, err := ParseDate(dateStr)
		if err != nil {
			report.Coercions++
			continue
		}

		rec := Record{
			State:           strings.TrimSpace(state),
			District:        strings.TrimSpace(district),
			Date:            date,
			Enrolments:      int64(num(row, ColEnrolments)),
			Updates:         int64(num(row, ColUpdates)),
			GrowthRate:      num(row, ColMEGR),
			AnomalyScore:    num(row, ColAnomalyScore),
			VolatilityScore: num(row, ColVolatilityScore),
			UnderperfScore:  num(row, ColUnderperfScore),
			ConfidenceScore: num(row, ColConfidenceScore),
			ForecastNext:    num(row, ColForecastNext),
		}
		if s, ok := field(row, ColRiskLevel); ok {
			if tier, valid := ParseRiskTier(strings.TrimSpace(s)); valid {
				rec.RiskTier = tier
			}
		}
		if s, ok := field(row, ColIsAnomaly); ok {
			rec.IsAnomaly = ParseBool(s)
		}
		if s, ok := field(row, ColUnderperfFlag); ok {
			rec.Underperformance = ParseBool(s)
		}
		if s, ok := field(row, ColIsSynthetic); ok {
			rec.Synthetic = ParseBool(s)
		}
		if s, ok := field(row, ColStateForecast); ok && strings.TrimSpace(s) != "" {
			rec.HasStateForecast = true
			rec.StateForecast = num(row, ColStateForecast)
			rec.StateLower = num(row, ColStateLower)
			rec.StateUpper = num(row, ColStateUpper)
		}
		records = append(records, rec)
	}

	return NewDataset(records, header), report, nil
}

// enrichedColumns is the full output schema, in write order.
var enrichedColumns = []string{
	ColState, ColDistrict, ColDate,
	ColEnrolments, ColUpdates,
	ColRiskLevel, ColMEGR,
	ColIsAnomaly, ColAnomalyScore, ColVolatilityScore, ColVolatilityLevel,
	ColUnderperfScore, ColUnderperfFlag,
	ColConfidenceScore, ColPriority, ColForecastNext, ColIsSynthetic,
	ColMonthYear, ColYear, ColMonth,
}

var stateForecastColumns = []string{ColStateForecast, ColStateLower, ColStateUpper}

// WriteCSV serializes the enriched dataset with the canonical header. The
// file is written to a temporary path in the same directory and renamed into
// place so concurrent readers never observe a partial write.
func WriteCSV(path string, ds *Dataset) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeCSV(tmp, ds); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace output file: %w", err)
	}
	return nil
}

// EncodeCSV writes the enriched dataset to w.
func EncodeCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)

	header := append([]string(nil), enrichedColumns...)
	withForecast := ds.Has(ColStateForecast)
	if withForecast {
		header = append(header, stateForecastColumns...)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range ds.Records {
		row := []string{
			r.State,
			r.District,
			r.Date.Format("2006-01-02"),
			strconv.FormatInt(r.Enrolments, 10),
			strconv.FormatInt(r.Updates, 10),
			string(r.RiskTier),
			strconv.FormatFloat(r.GrowthRate, 'f', 2, 64),
			FormatBool(r.IsAnomaly),
			strconv.FormatFloat(r.AnomalyScore, 'f', 4, 64),
			strconv.FormatFloat(r.VolatilityScore, 'f', 4, 64),
			string(r.VolatilityTier),
			strconv.FormatFloat(r.UnderperfScore, 'f', 4, 64),
			FormatBool(r.Underperformance),
			strconv.FormatFloat(r.ConfidenceScore, 'f', 1, 64),
			string(r.Priority),
			strconv.FormatFloat(r.ForecastNext, 'f', 0, 64),
			FormatBool(r.Synthetic),
			r.Date.Format("Jan 2006"),
			strconv.Itoa(r.Date.Year()),
			strconv.Itoa(int(r.Date.Month())),
		}
		if withForecast {
			if r.HasStateForecast {
				row = append(row,
					strconv.FormatFloat(r.StateForecast, 'f', 2, 64),
					strconv.FormatFloat(r.StateLower, 'f', 2, 64),
					strconv.FormatFloat(r.StateUpper, 'f', 2, 64),
				)
			} else {
				row = append(row, "", "", "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
