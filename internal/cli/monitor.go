package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/keralanet/floodwatch/internal/observability"
	"github.com/keralanet/floodwatch/internal/server"
	"github.com/keralanet/floodwatch/pkg/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the continuous monitoring loop and API server",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Bool("demo", false, "Use the rule-based classifier instead of a model artifact")
	monitorCmd.Flags().Duration("interval", 0, "Override the evaluation interval")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	demo, _ := cmd.Flags().GetBool("demo")
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Monitor.Interval = interval
	}

	logger := newLogger(cfg)

	eng, db, err := initEngine(cfg, demo, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := initProvider(cfg)
	if err != nil {
		return fmt.Errorf("init observation source: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	runner := monitor.NewRunner(eng, provider, monitor.Config{
		Districts: cfg.DistrictList(),
		Interval:  cfg.Monitor.Interval,
	}, metrics, logger)

	apiServer := server.NewServer(db, registry, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server started", "listen", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("monitoring started",
			"districts", len(cfg.DistrictList()),
			"interval", cfg.Monitor.Interval,
			"demo", demo)
		errCh <- runner.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case sig := <-quit:
			if sig == syscall.SIGHUP {
				logger.Info("immediate evaluation requested", "signal", sig.String())
				runner.TriggerNow()
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
