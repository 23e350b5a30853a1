package main

import (
	"errors"

	"github.com/spf13/cobra"

	"skymind/internal/sink"
)

var (
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay persisted history into the configured sinks",
	Long: "replay reads every stored row and writes it to the configured sinks, " +
		"grouped by poll time and paced by the original gaps divided by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replaySpeed <= 0 {
			return errors.New("--speed must be positive")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, replayPrintOnly)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.sinks.Len() == 0 {
			return errors.New("no sinks configured; enable one or pass --print-only")
		}
		rows, found, err := a.store.LoadAll(ctx)
		if err != nil {
			return err
		}
		if !found {
			logger.Info("no history to replay")
			return nil
		}
		batches, err := sink.Replay(ctx, rows, a.sinks, replaySpeed)
		logger.Info("replay finished", "rows", len(rows), "batches", batches)
		return err
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print rows to STDOUT instead of the configured sinks")
}
