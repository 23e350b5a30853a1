package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skymind/internal/pipeline"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent persisted rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.pipeline.History(ctx, historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if historyJSON {
			return printJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No history yet.")
			return nil
		}
		fmt.Fprintln(out, renderTable(pipeline.HistoryTable(rows)))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of rows to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print rows as JSON")
}
