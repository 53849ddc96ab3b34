// Package main is the entry point for riskpilot, a market-risk monitor that
// scores indicators, assigns a risk regime, recommends allocation targets and
// measures portfolio drift against them.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/config"
	"github.com/aristath/riskpilot/pkg/logger"
)

var policyPath string

// rootCmd is the base command for the riskpilot CLI
var rootCmd = &cobra.Command{
	Use:   "riskpilot",
	Short: "Market risk regime monitor and allocation guide",
	Long: `riskpilot scores a set of market indicators into a composite risk score,
assigns a risk regime with hysteresis, recommends allocation targets and
compares them with the current portfolio.

Runtime settings come from the environment (or a .env file); engine tuning
lives in the policy file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy file (overrides POLICY_PATH; default is the embedded policy)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads the runtime configuration and builds the logger
func bootstrap() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if policyPath != "" {
		cfg.PolicyPath = policyPath
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	if err := cfg.Validate(); err != nil {
		return nil, log, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}
