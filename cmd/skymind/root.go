package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"skymind/internal/config"
	"skymind/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skymind",
	Short: "SkyMind live flight delay pipeline",
	Long: "SkyMind polls OpenSky state vectors, labels flights with a delay rule, " +
		"appends them to a history store and optionally predicts delays with a trained model.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			if _, err := logging.ParseLevel(logLevel); err != nil {
				return err
			}
			c.Log.Level = logLevel
		}
		cfg = c
		logger = logging.New(cfg.Log.Level)
		slog.SetDefault(logger)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to a CUE schema overriding the embedded one")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(countriesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(validateCmd)
}
