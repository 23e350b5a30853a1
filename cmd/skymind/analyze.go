package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"skymind/internal/flights"
	"skymind/internal/pipeline"
)

var (
	analyzeCountry string
	analyzeMode    string
	analyzeWhere   string
	analyzeJSON    bool
	analyzePredict bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Fetch, label and persist flights for one country",
	Example: `  skymind analyze --country Germany
  skymind analyze --country "United States" --mode substring --where "velocity > 200" --predict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeCountry == "" {
			return errors.New("--country is required")
		}
		if analyzePredict {
			cfg.Label.Predict = true
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.pipeline.Analyze(ctx, pipeline.Request{
			Country: analyzeCountry,
			Mode:    flights.FilterMode(analyzeMode),
			Where:   analyzeWhere,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if analyzeJSON {
			return printJSON(out, rep)
		}
		printMessages(out, rep.Messages)
		if rows := rep.Table(); len(rows) > 0 {
			fmt.Fprintln(out, renderTable(rows))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCountry, "country", "", "Origin country to analyze")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "Country match mode: exact or substring (config default when empty)")
	analyzeCmd.Flags().StringVar(&analyzeWhere, "where", "", "Optional expr filter, e.g. \"velocity > 200 && !on_ground\"")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzePredict, "predict", false, "Train the delay model on history and predict current flights")
}
