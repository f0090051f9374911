package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrolytics/pipeline/internal/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func multiMonthRaw(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "master_data.csv")
	writeFile(t, path,
		"state,district,date,enrolments,updates",
		"Uttar Pradesh,Lucknow,2025-01-01,1000,300",
		"Uttar Pradesh,Lucknow,2025-02-01,1500,450",
		"Maharashtra,Pune,2025-01-01,2000,600",
		"Maharashtra,Pune,2025-02-01,1800,540",
	)
	return path
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := multiMonthRaw(t, dir)
	outPath := filepath.Join(dir, "out", "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithClock(clockwork.NewFakeClock()),
		WithConfig(Config{RawPath: rawPath, OutputPath: outPath, DataDir: dir}),
	)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rawPath, report.RawPath)
	assert.Equal(t, 4, report.RowsIn)
	assert.Equal(t, 4, report.RowsOut)
	assert.Equal(t, 0, report.Coercions)
	assert.False(t, report.Synthesized)
	assert.False(t, report.ForecastMerged)

	// No forecast file anywhere: absorbed as a warning, never fatal.
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, strings.Join(report.Warnings, "; "), "state forecast merge skipped")

	ds, _, err := dataset.ReadCSV(outPath)
	require.NoError(t, err)
	require.Len(t, ds.Records, 4)

	byKey := make(map[string]dataset.Record)
	for _, r := range ds.Records {
		byKey[r.Key()] = r
	}
	assert.InDelta(t, 50.0, byKey["Uttar Pradesh|Lucknow|2025-02"].GrowthRate, 1e-6)
	assert.InDelta(t, -10.0, byKey["Maharashtra|Pune|2025-02"].GrowthRate, 1e-6)
	assert.Equal(t, 0.0, byKey["Uttar Pradesh|Lucknow|2025-01"].GrowthRate)
}

func TestPipeline_Run_MissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{
			RawPath:    filepath.Join(dir, "absent.csv"),
			OutputPath: outPath,
			DataDir:    dir,
		}),
	)
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, dataset.ErrMissingInput)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "fatal runs must not write output")
}

func TestPipeline_Run_SchemaError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "master.csv")
	writeFile(t, rawPath,
		"state,enrolments",
		"UP,1000",
	)
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{RawPath: rawPath, OutputPath: outPath, DataDir: dir}),
	)
	_, err := p.Run(context.Background())
	var schemaErr *dataset.SchemaError
	require.ErrorAs(t, err, &schemaErr)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "fatal runs must not write output")
}

func TestPipeline_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := multiMonthRaw(t, dir)
	outPath := filepath.Join(dir, "processed_data.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{RawPath: rawPath, OutputPath: outPath, DataDir: dir}),
	)
	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_Run_SingleMonthSynthesis(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "master.csv")
	writeFile(t, rawPath,
		"state,district,month,total_enrolments",
		"Uttar Pradesh,Lucknow,2025-06,1000",
		"Uttar Pradesh,Kanpur,2025-06,2000",
	)
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{RawPath: rawPath, OutputPath: outPath, DataDir: dir}),
	)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Synthesized)
	assert.Equal(t, 2, report.RowsIn)
	assert.Equal(t, 24, report.RowsOut)

	ds, _, err := dataset.ReadCSV(outPath)
	require.NoError(t, err)
	require.Len(t, ds.Records, 24)
	for _, r := range ds.Records {
		assert.True(t, r.Synthetic)
	}
}

func TestPipeline_Run_SynthesisDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "master.csv")
	writeFile(t, rawPath,
		"state,district,month,total_enrolments",
		"Uttar Pradesh,Lucknow,2025-06,1000",
	)
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{RawPath: rawPath, OutputPath: outPath, DataDir: dir}),
		WithSynthesis(false),
	)
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Synthesized)
	assert.Equal(t, 1, report.RowsOut)
}

func TestPipeline_Run_ForecastMerge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := multiMonthRaw(t, dir)
	forecastPath := filepath.Join(dir, "state_forecast.csv")
	writeFile(t, forecastPath,
		"state,month,forecast,lower,upper",
		"Uttar Pradesh,2025-01,40000,35000,45000",
		"Uttar Pradesh,2025-03,50000,45000,55000",
		"Kerala,2025-03,9000,8000,10000",
	)
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{
			RawPath:      rawPath,
			ForecastPath: forecastPath,
			OutputPath:   outPath,
			DataDir:      dir,
		}),
	)
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.ForecastMerged)

	ds, _, err := dataset.ReadCSV(outPath)
	require.NoError(t, err)
	assert.True(t, ds.Has(dataset.ColStateForecast))

	for _, r := range ds.Records {
		switch r.State {
		case "Uttar Pradesh":
			// Latest month per state wins.
			require.True(t, r.HasStateForecast)
			assert.InDelta(t, 50000, r.StateForecast, 1e-6)
			assert.InDelta(t, 45000, r.StateLower, 1e-6)
			assert.InDelta(t, 55000, r.StateUpper, 1e-6)
		default:
			assert.False(t, r.HasStateForecast, "state %s has no forecast row", r.State)
		}
	}
}

func TestPipeline_Run_ForecastMergeBadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rawPath := multiMonthRaw(t, dir)
	forecastPath := filepath.Join(dir, "forecast.csv")
	writeFile(t, forecastPath,
		"month,forecast",
		"2025-01,40000",
	)
	outPath := filepath.Join(dir, "processed_data.csv")

	p := New(
		WithLogger(testLogger()),
		WithConfig(Config{
			RawPath:      rawPath,
			ForecastPath: forecastPath,
			OutputPath:   outPath,
			DataDir:      dir,
		}),
	)
	report, err := p.Run(context.Background())
	require.NoError(t, err, "a broken forecast file must not fail the run")
	assert.False(t, report.ForecastMerged)
	assert.Contains(t, strings.Join(report.Warnings, "; "), "state forecast merge skipped")

	ds, _, err := dataset.ReadCSV(outPath)
	require.NoError(t, err)
	assert.False(t, ds.Has(dataset.ColStateForecast))
}

func TestPipeline_Discovery(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a csv")
	writeFile(t, filepath.Join(dir, "UIDAI_master_2025.csv"), "state,district,date")
	writeFile(t, filepath.Join(dir, "state_forecast.csv"), "state,month,forecast")

	raw, err := DiscoverRaw(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "UIDAI_master_2025.csv"), raw)

	fc, err := DiscoverForecast(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state_forecast.csv"), fc)

	empty := t.TempDir()
	_, err = DiscoverRaw(empty)
	require.Error(t, err)
	_, err = DiscoverForecast(empty)
	require.Error(t, err)
}

func TestPipeline_ConfigFromEnv(t *testing.T) {
	t.Setenv("ENROL_RAW_PATH", "/tmp/raw.csv")
	t.Setenv("ENROL_OUTPUT_PATH", "/tmp/out.csv")
	t.Setenv("ENROL_DATA_DIR", "/tmp/data")

	cfg := ConfigFromEnv()
	assert.Equal(t, "/tmp/raw.csv", cfg.RawPath)
	assert.Equal(t, "/tmp/out.csv", cfg.OutputPath)
	assert.Equal(t, "/tmp/data", cfg.DataDir)
	assert.Empty(t, cfg.ForecastPath)
}

func TestPipeline_Config_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{OutputPath: "out.csv", DataDir: "."}
	require.NoError(t, cfg.Validate())

	cfg = Config{DataDir: "."}
	require.Error(t, cfg.Validate())

	cfg = Config{OutputPath: "out.csv"}
	require.Error(t, cfg.Validate())
}
