package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enrolytics/pipeline/internal/pipeline"
)

type EnrichCmd struct{}

func NewEnrichCmd() *EnrichCmd {
	return &EnrichCmd{}
}

func (c *EnrichCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run the batch enrichment pipeline over a raw dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := rootVerbose(cmd)
			if err != nil {
				return err
			}
			rawPath, err := cmd.Flags().GetString("raw")
			if err != nil {
				return fmt.Errorf("failed to get raw flag: %w", err)
			}
			forecastPath, err := cmd.Flags().GetString("forecast")
			if err != nil {
				return fmt.Errorf("failed to get forecast flag: %w", err)
			}
			outputPath, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("failed to get output flag: %w", err)
			}
			dataDir, err := cmd.Flags().GetString("data-dir")
			if err != nil {
				return fmt.Errorf("failed to get data-dir flag: %w", err)
			}
			noSynthesis, err := cmd.Flags().GetBool("no-synthesis")
			if err != nil {
				return fmt.Errorf("failed to get no-synthesis flag: %w", err)
			}

			log := newLogger(verbose)

			cfg := pipeline.ConfigFromEnv()
			if rawPath != "" {
				cfg.RawPath = rawPath
			}
			if forecastPath != "" {
				cfg.ForecastPath = forecastPath
			}
			if outputPath != "" {
				cfg.OutputPath = outputPath
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}

			p := pipeline.New(
				pipeline.WithLogger(log),
				pipeline.WithConfig(cfg),
				pipeline.WithSynthesis(!noSynthesis),
			)
			report, err := p.Run(cmd.Context())
			if err != nil {
				log.Error("pipeline run failed", "error", err)
				return err
			}
			for _, w := range report.Warnings {
				log.Warn(w)
			}
			return nil
		},
	}

	cmd.Flags().String("raw", "", "raw dataset path (default: discover *master*.csv in data dir)")
	cmd.Flags().String("forecast", "", "state forecast file path (default: discover *forecast*.csv in data dir)")
	cmd.Flags().String("output", "", "enriched output path (default: data/processed_data.csv)")
	cmd.Flags().String("data-dir", "", "directory searched for input files")
	cmd.Flags().Bool("no-synthesis", false, "disable single-month history synthesis")

	return cmd
}
