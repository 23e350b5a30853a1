package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"skymind/internal/pipeline"
)

const noCountriesWarning = "Could not fetch live data or no countries available."

var countriesJSON bool

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List origin countries in the current snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		countries, err := a.pipeline.Countries(ctx)
		if err != nil {
			return err
		}
		return printCountries(cmd.OutOrStdout(), cmd.ErrOrStderr(), countries, countriesJSON)
	},
}

// printCountries writes one country per line, or a JSON array. An empty list
// is warned about on errOut.
func printCountries(out, errOut io.Writer, countries []string, asJSON bool) error {
	if len(countries) == 0 {
		fmt.Fprintln(errOut, levelStyles[pipeline.LevelWarning].Render("[warning] "+noCountriesWarning))
	}
	if asJSON {
		if countries == nil {
			countries = []string{}
		}
		return printJSON(out, countries)
	}
	for _, c := range countries {
		fmt.Fprintln(out, c)
	}
	return nil
}

func init() {
	countriesCmd.Flags().BoolVar(&countriesJSON, "json", false, "Print as a JSON array")
}
