package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/enrolytics/pipeline/internal/duck"
)

type SummaryCmd struct{}

func NewSummaryCmd() *SummaryCmd {
	return &SummaryCmd{}
}

func (c *SummaryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show state rollups and risk distribution for the enriched dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := rootVerbose(cmd)
			if err != nil {
				return err
			}
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			dbPath, err := cmd.Flags().GetString("db")
			if err != nil {
				return fmt.Errorf("failed to get db flag: %w", err)
			}

			log := newLogger(verbose)

			store, err := duck.NewStore(duck.StoreConfig{
				Logger: log,
				Path:   dbPath,
			})
			if err != nil {
				return fmt.Errorf("failed to open analytics store: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.LoadEnriched(ctx, input); err != nil {
				return err
			}

			summaries, err := store.StateSummaries(ctx)
			if err != nil {
				return err
			}
			fmt.Println("State summary:")
			table := tablewriter.NewWriter(os.Stdout)
			table.SetAutoFormatHeaders(false)
			table.SetHeader([]string{"State", "Districts", "Enrolments", "Updates", "Anomalies", "Avg Growth %"})
			for _, s := range summaries {
				table.Append([]string{
					s.State,
					fmt.Sprintf("%d", s.Districts),
					fmt.Sprintf("%d", s.Enrolments),
					fmt.Sprintf("%d", s.Updates),
					fmt.Sprintf("%d", s.Anomalies),
					fmt.Sprintf("%.2f", s.AvgGrowth),
				})
			}
			table.Render()

			counts, err := store.RiskCounts(ctx)
			if err != nil {
				return err
			}
			fmt.Println("\nRisk distribution:")
			riskTable := tablewriter.NewWriter(os.Stdout)
			riskTable.SetAutoFormatHeaders(false)
			riskTable.SetHeader([]string{"Risk Level", "Records"})
			for _, rc := range counts {
				riskTable.Append([]string{rc.RiskLevel, fmt.Sprintf("%d", rc.Count)})
			}
			riskTable.Render()

			timeline, err := store.AnomalyTimeline(ctx)
			if err != nil {
				return err
			}
			if len(timeline) > 0 {
				fmt.Println("\nAnomaly timeline:")
				tlTable := tablewriter.NewWriter(os.Stdout)
				tlTable.SetAutoFormatHeaders(false)
				tlTable.SetHeader([]string{"Date", "Anomalies"})
				for _, p := range timeline {
					tlTable.Append([]string{p.Date.Format("2006-01-02"), fmt.Sprintf("%d", p.Count)})
				}
				tlTable.Render()
			}
			return nil
		},
	}

	cmd.Flags().String("input", "data/processed_data.csv", "enriched dataset path")
	cmd.Flags().String("db", "", "DuckDB database file (default: in-memory)")

	return cmd
}
