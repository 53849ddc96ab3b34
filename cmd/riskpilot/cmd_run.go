package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/di"
	"github.com/aristath/riskpilot/internal/modules/report"
	"github.com/aristath/riskpilot/internal/reliability"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one risk cycle and print the report",
	Long: `Run a single cycle: take the cycle lock, fetch every indicator, score,
classify the regime, compute targets and drift, commit the history record
and print the report. The report is also written under <data_dir>/reports.

A cycle that finds another cycle in progress exits without changes.`,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	result, err := container.Cycle.Run(ctx)
	if errors.Is(err, reliability.ErrCycleInProgress) {
		log.Warn().Msg("Another cycle is in progress, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), report.Render(result.Payload))
	if result.ReportPath != "" {
		log.Info().Str("path", result.ReportPath).Msg("Report written")
	}
	return nil
}
