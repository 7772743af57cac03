package cmd

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/enerflow/bess/config"
	"github.com/enerflow/bess/core/ems"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print one day of demand and solar predictions",
	RunE:  printForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)
}

func printForecast(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var rng *rand.Rand
	if cfg.EMS.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.EMS.Seed))
	}
	fc := ems.NewForecaster(cfg.EMS.SolarCapacityKW, rng)

	fmt.Fprintln(cmd.OutOrStdout(), "hour  demand_kw  solar_kw")
	for h := 0; h < 24; h++ {
		hour := float64(h)
		fmt.Fprintf(cmd.OutOrStdout(), "%4d  %9.2f  %8.2f\n", h, fc.Demand(hour), fc.Solar(hour))
	}
	return nil
}
