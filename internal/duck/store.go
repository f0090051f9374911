// Package duck is the serving layer for dashboard consumers: it loads the
// enriched CSV into a DuckDB table and answers the rollup queries the
// presentation layer needs, so consumers never parse the CSV themselves.
package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

const enrichedTable = "enriched"

type StoreConfig struct {
	Logger *slog.Logger
	// Path is the database file; empty opens an in-memory database.
	Path string
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
	db  *sql.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database: %w", err)
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
		db:  db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadEnriched (re)creates the enriched table from the CSV the pipeline
// wrote. The whole table is replaced: the enriched dataset is an immutable
// snapshot per run.
func (s *Store) LoadEnriched(ctx context.Context, csvPath string) error {
	s.log.Debug("duck/store: loading enriched dataset", "path", csvPath)
	escaped := strings.ReplaceAll(csvPath, "'", "''")
	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv('%s', header = true)",
		enrichedTable, escaped)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to load enriched csv: %w", err)
	}
	return nil
}

// StateSummary is one state's rollup across all its districts and periods.
type StateSummary struct {
	State      string
	Districts  int
	Enrolments int64
	Updates    int64
	Anomalies  int
	AvgGrowth  float64
}

func (s *Store) StateSummaries(ctx context.Context) ([]StateSummary, error) {
	query := `SELECT State,
	          COUNT(DISTINCT District) AS districts,
	          SUM(Enrolments) AS enrolments,
	          SUM(Updates) AS updates,
	          COUNT(*) FILTER (WHERE Is_Anomaly) AS anomalies,
	          AVG(MEGR) AS avg_growth
	          FROM enriched
	          GROUP BY State
	          ORDER BY State`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query state summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]StateSummary, 0)
	for rows.Next() {
		var sum StateSummary
		var avgGrowth sql.NullFloat64
		if err := rows.Scan(&sum.State, &sum.Districts, &sum.Enrolments,
			&sum.Updates, &sum.Anomalies, &avgGrowth); err != nil {
			return nil, fmt.Errorf("failed to scan state summary: %w", err)
		}
		if avgGrowth.Valid {
			sum.AvgGrowth = avgGrowth.Float64
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state summaries: %w", err)
	}
	return summaries, nil
}

// RiskCount is the record count for one risk tier.
type RiskCount struct {
	RiskLevel string
	Count     int
}

func (s *Store) RiskCounts(ctx context.Context) ([]RiskCount, error) {
	query := `SELECT Risk_Level, COUNT(*) AS cnt
	          FROM enriched
	          GROUP BY Risk_Level
	          ORDER BY cnt DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk counts: %w", err)
	}
	defer rows.Close()

	counts := make([]RiskCount, 0)
	for rows.Next() {
		var rc RiskCount
		var level sql.NullString
		if err := rows.Scan(&level, &rc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan risk count: %w", err)
		}
		if level.Valid {
			rc.RiskLevel = level.String
		}
		counts = append(counts, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk counts: %w", err)
	}
	return counts, nil
}

// AnomalyTimelinePoint is the anomaly count for one reporting date.
type AnomalyTimelinePoint struct {
	Date  time.Time
	Count int
}

func (s *Store) AnomalyTimeline(ctx context.Context) ([]AnomalyTimelinePoint, error) {
	query := `SELECT Date, COUNT(*) AS cnt
	          FROM enriched
	          WHERE Is_Anomaly
	          GROUP BY Date
	          ORDER BY Date`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly timeline: %w", err)
	}
	defer rows.Close()

	points := make([]AnomalyTimelinePoint, 0)
	for rows.Next() {
		var p AnomalyTimelinePoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly timeline point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly timeline: %w", err)
	}
	return points, nil
}
