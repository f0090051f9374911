package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultOutputPath = "data/processed_data.csv"
)

// Config holds the file locations for one pipeline run.
type Config struct {
	// RawPath is the raw dataset. Empty means discover it under DataDir.
	RawPath string
	// ForecastPath is the optional state-level forecast file. Empty means
	// discover it under DataDir; absence is not an error.
	ForecastPath string
	// OutputPath receives the enriched dataset.
	OutputPath string
	// DataDir is searched when RawPath/ForecastPath are unset.
	DataDir string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		RawPath:      os.Getenv("ENROL_RAW_PATH"),
		ForecastPath: os.Getenv("ENROL_FORECAST_PATH"),
		OutputPath:   getEnvOrDefault("ENROL_OUTPUT_PATH", defaultOutputPath),
		DataDir:      getEnvOrDefault("ENROL_DATA_DIR", "."),
	}
}

func (c *Config) Validate() error {
	if c.OutputPath == "" {
		return errors.New("output path is required")
	}
	if c.RawPath == "" && c.DataDir == "" {
		return errors.New("either a raw path or a data directory is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// DiscoverRaw finds the raw dataset under dir: the first CSV whose name
// contains "master". Returns the attempted location in the error so the
// caller can fix configuration.
func DiscoverRaw(dir string) (string, error) {
	path, err := discoverCSV(dir, "master")
	if err != nil {
		return "", fmt.Errorf("no raw dataset (*master*.csv) found under %s: %w", dir, err)
	}
	return path, nil
}

// DiscoverForecast finds the optional state forecast file under dir: the
// first CSV whose name contains "forecast".
func DiscoverForecast(dir string) (string, error) {
	return discoverCSV(dir, "forecast")
}

func discoverCSV(dir, token string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.Contains(name, token) && strings.HasSuffix(name, ".csv") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no *%s*.csv in %s", token, dir)
}
