// Package cli wires the enrolctl commands: enrich runs the batch pipeline,
// forecast and anomalies run the interactive analyses against the enriched
// dataset, and summary serves DuckDB-backed rollups.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:   "enrolctl",
		Short: "Batch analytics pipeline for enrolment operations data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		NewEnrichCmd().Command(),
		NewForecastCmd().Command(),
		NewAnomaliesCmd().Command(),
		NewSummaryCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func rootVerbose(cmd *cobra.Command) (bool, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return false, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	return verbose, nil
}
