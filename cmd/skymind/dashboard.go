package main

import (
	"github.com/spf13/cobra"

	"skymind/internal/dashboard"
	"skymind/internal/sink"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	Long:  "dashboard renders the embedded Grafana templates. " + dashboard.DatasourceEnv + " must hold the datasource UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables := dashboard.Tables{
			State:      cfg.Sinks.Greptime.StateTable,
			Prediction: cfg.Sinks.Greptime.PredictionTable,
		}
		if tables.State == "" {
			tables.State = sink.DefaultStateTable
		}
		if tables.Prediction == "" {
			tables.Prediction = sink.DefaultPredictionTable
		}
		if err := dashboard.Render(dashboardOut, tables); err != nil {
			return err
		}
		logger.Info("dashboards written", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
