package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/enrolytics/pipeline/internal/dataset"
	"github.com/enrolytics/pipeline/internal/forecast"
)

type ForecastCmd struct{}

func NewForecastCmd() *ForecastCmd {
	return &ForecastCmd{}
}

func (c *ForecastCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project enrolment demand from the enriched dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := rootVerbose(cmd)
			if err != nil {
				return err
			}
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			months, err := cmd.Flags().GetInt("months")
			if err != nil {
				return fmt.Errorf("failed to get months flag: %w", err)
			}
			scenario, err := cmd.Flags().GetString("scenario")
			if err != nil {
				return fmt.Errorf("failed to get scenario flag: %w", err)
			}
			confidence, err := cmd.Flags().GetInt("confidence")
			if err != nil {
				return fmt.Errorf("failed to get confidence flag: %w", err)
			}
			state, err := cmd.Flags().GetString("state")
			if err != nil {
				return fmt.Errorf("failed to get state flag: %w", err)
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			if months < 1 || months > 6 {
				return fmt.Errorf("months must be in [1,6], got %d", months)
			}

			log := newLogger(verbose)

			ds, _, err := dataset.ReadCSV(input)
			if err != nil {
				return fmt.Errorf("failed to read enriched dataset: %w", err)
			}
			records := ds.Records
			if state != "" {
				filtered := records[:0:0]
				for _, r := range records {
					if r.State == state {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			if len(records) == 0 {
				return fmt.Errorf("no records to forecast (state filter: %q)", state)
			}

			opts := forecast.Options{
				HorizonDays:     months * 30,
				Scenario:        forecast.Scenario(scenario),
				ConfidenceLevel: confidence,
			}
			history := forecast.AggregateDaily(records)
			points, err := forecast.Generate(history, opts)
			if err != nil {
				return err
			}
			log.Debug("forecast generated",
				"history_points", len(history), "horizon_days", len(points))

			printMonthlyForecast(forecast.MonthlyRollup(points), scenario, confidence)

			if outPath != "" {
				if err := writeForecastCSV(outPath, points); err != nil {
					return err
				}
				log.Info("daily forecast exported", "path", outPath)
			}
			return nil
		},
	}

	cmd.Flags().String("input", "data/processed_data.csv", "enriched dataset path")
	cmd.Flags().Int("months", 3, "forecast horizon in months (1-6)")
	cmd.Flags().String("scenario", string(forecast.ScenarioBaseline), "growth scenario (Conservative, Baseline, Optimistic)")
	cmd.Flags().Int("confidence", 95, "confidence level (90, 95, 99)")
	cmd.Flags().String("state", "", "restrict the forecast to one state")
	cmd.Flags().String("out", "", "export the daily forecast to this CSV path")

	return cmd
}

func printMonthlyForecast(months []forecast.MonthlyPoint, scenario string, confidence int) {
	fmt.Printf("Scenario: %s | Confidence: %d%%\n", scenario, confidence)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Month", "Forecast", "Lower", "Upper"})
	for _, m := range months {
		table.Append([]string{
			m.Month.Format("Jan 2006"),
			fmt.Sprintf("%.0f", m.Forecast),
			fmt.Sprintf("%.0f", m.Lower),
			fmt.Sprintf("%.0f", m.Upper),
		})
	}
	table.Render()
}

func writeForecastCSV(path string, points []forecast.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create forecast export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "forecast", "lower", "upper"}); err != nil {
		return fmt.Errorf("failed to write forecast header: %w", err)
	}
	for _, p := range points {
		err := w.Write([]string{
			p.Date.Format("2006-01-02"),
			strconv.FormatFloat(p.Forecast, 'f', 2, 64),
			strconv.FormatFloat(p.Lower, 'f', 2, 64),
			strconv.FormatFloat(p.Upper, 'f', 2, 64),
		})
		if err != nil {
			return fmt.Errorf("failed to write forecast row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush forecast export: %w", err)
	}
	return nil
}
