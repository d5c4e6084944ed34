package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/tally/internal/config"
	"github.com/harun/tally/internal/observability"
	"github.com/harun/tally/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload queued sessions on a schedule",
	Long: `Run in the foreground and upload queued sessions on the configured
cron schedule until SIGINT or SIGTERM. Optionally serves Prometheus metrics.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("tally run is already running (PID file: %s)", pidFile)
	}

	cfg, appLog, client, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLog.Close()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.NewValidator().ValidateSchedule(cfg.Upload.Schedule); err != nil {
		return err
	}

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry("tally", version); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown tracing")
			}
		}()
	}

	if err := writePIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer removePIDFile(pidFile)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = startMetricsServer(cfg.MetricsAddr)
	}

	scheduler := client.Scheduler(cfg.Upload.Schedule)
	if err := scheduler.Start(); err != nil {
		return err
	}
	scheduler.Trigger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(cmd.OutOrStdout(), "Uploading on schedule %q, press Ctrl+C to stop\n", cfg.Upload.Schedule)
	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if res := client.Shutdown(shutdownCtx); !res.OK() {
		log.Warn().Str("outcome", res.String()).Msg("Upload did not stop cleanly")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return server
}
