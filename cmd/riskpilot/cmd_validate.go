package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/di"
	"github.com/aristath/riskpilot/internal/modules/validation"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Measure how well recorded scores anticipated benchmark moves",
	Long: `Run the validation engine over the whole history ledger against the
benchmark price file (BENCHMARK_PRICES_PATH).

Examples:
  riskpilot validate
  riskpilot validate --json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the report as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx := context.Background()
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	rep, err := container.Validation.Validate(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprint(out, validation.Render(rep))
	return nil
}
