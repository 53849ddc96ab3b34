package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/di"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/aristath/riskpilot/internal/server"
)

var serveDev bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled cycles and serve the read-only API",
	Long: `Start the cron scheduler (cycle, validation, archive and maintenance
jobs) and the HTTP API with /health, /metrics and /api endpoints.
Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Disable response compression for local debugging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	container, err := di.Wire(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	sched := scheduler.New(log)
	if _, err := di.RegisterJobs(sched, container, cfg, log); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Log:        log,
		LedgerDB:   container.LedgerDB,
		Policy:     container.Policy,
		Allocation: container.Allocation,
		Validation: container.Validation,
		Metrics:    container.Metrics,
		Scheduler:  sched,
		Port:       cfg.Port,
		DevMode:    serveDev,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()
	sched.Start()

	log.Info().Int("port", cfg.Port).Msg("riskpilot started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("HTTP server stopped")
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("riskpilot stopped")
	return runErr
}
