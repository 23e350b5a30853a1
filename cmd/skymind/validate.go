package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skymind/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config.yaml]",
	Short: "Check a configuration file against the schema",
	Args:  cobra.MaximumNArgs(1),
	// Skip the root hook so a broken file is reported here, not while loading.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no configuration file given")
		}
		if _, err := config.Load(path, schemaPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
		return nil
	},
}
