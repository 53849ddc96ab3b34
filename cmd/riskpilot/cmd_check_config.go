package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/policy"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the runtime configuration and policy",
	Long: `Load the environment configuration and the policy file, run every
load-time check and print the resulting allocation table.
Exits non-zero when any check fails.`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	p, err := policy.LoadOrDefault(cfg.PolicyPath, log)
	if err != nil {
		return err
	}
	engine, err := allocation.NewEngine(p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	source := cfg.PolicyPath
	if source == "" {
		source = "embedded default"
	}
	fmt.Fprintf(out, "Policy OK (%s): %d indicators, %d regimes\n", source, len(p.IndicatorNames()), len(p.Regimes))
	for _, row := range engine.Table() {
		fmt.Fprintf(out, "  %-10s", row.Regime)
		for _, b := range domain.AllBuckets() {
			fmt.Fprintf(out, " %s=%.1f", b, row.Targets[b])
		}
		fmt.Fprintln(out)
	}
	return nil
}
