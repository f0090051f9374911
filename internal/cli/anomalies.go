package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/enrolytics/pipeline/internal/anomaly"
	"github.com/enrolytics/pipeline/internal/dataset"
)

type AnomaliesCmd struct{}

func NewAnomaliesCmd() *AnomaliesCmd {
	return &AnomaliesCmd{}
}

func (c *AnomaliesCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Detect and rank anomalous records in the enriched dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := rootVerbose(cmd)
			if err != nil {
				return err
			}
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return fmt.Errorf("failed to get mode flag: %w", err)
			}
			sensitivity, err := cmd.Flags().GetInt("sensitivity")
			if err != nil {
				return fmt.Errorf("failed to get sensitivity flag: %w", err)
			}
			state, err := cmd.Flags().GetString("state")
			if err != nil {
				return fmt.Errorf("failed to get state flag: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			log := newLogger(verbose)

			cfg := anomaly.DefaultConfig()
			cfg.Mode = anomaly.Mode(mode)
			cfg.Sensitivity = sensitivity
			detector, err := anomaly.NewDetector(cfg)
			if err != nil {
				return err
			}

			ds, _, err := dataset.ReadCSV(input)
			if err != nil {
				return fmt.Errorf("failed to read enriched dataset: %w", err)
			}
			if state != "" {
				filtered := ds.Records[:0:0]
				for _, r := range ds.Records {
					if r.State == state {
						filtered = append(filtered, r)
					}
				}
				ds.Records = filtered
			}
			if len(ds.Records) == 0 {
				return fmt.Errorf("no records to analyze (state filter: %q)", state)
			}

			detector.Detect(ds)

			type ranked struct {
				rec   dataset.Record
				score float64
			}
			flagged := make([]ranked, 0)
			for _, r := range ds.Records {
				if !r.IsAnomaly {
					continue
				}
				flagged = append(flagged, ranked{rec: r, score: anomaly.SeverityScore(r)})
			}
			sort.SliceStable(flagged, func(i, j int) bool {
				return flagged[i].score > flagged[j].score
			})
			log.Info("anomaly detection complete",
				"detector", detector.String(),
				"records", len(ds.Records),
				"anomalies", len(flagged))

			if len(flagged) == 0 {
				fmt.Println("No anomalies detected.")
				return nil
			}
			if limit > 0 && len(flagged) > limit {
				flagged = flagged[:limit]
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetAutoFormatHeaders(false)
			table.SetHeader([]string{"State", "District", "Date", "Enrolments", "Risk", "Severity", "Level"})
			for _, f := range flagged {
				table.Append([]string{
					f.rec.State,
					f.rec.District,
					f.rec.Date.Format("2006-01-02"),
					fmt.Sprintf("%d", f.rec.Enrolments),
					string(f.rec.RiskTier),
					fmt.Sprintf("%.1f", f.score),
					string(anomaly.SeverityLevelFor(f.score)),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("input", "data/processed_data.csv", "enriched dataset path")
	cmd.Flags().String("mode", string(anomaly.ModeCombined), "detection mode (rule, statistical, combined)")
	cmd.Flags().Int("sensitivity", 5, "detection sensitivity (1-10, higher flags more)")
	cmd.Flags().String("state", "", "restrict detection to one state")
	cmd.Flags().Int("limit", 20, "show at most this many anomalies (0 for all)")

	return cmd
}
