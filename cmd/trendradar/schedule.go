package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/maine/trendradar/internal/app"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newScheduleCmd(flags *globalFlags) *cobra.Command {
	var (
		cronExpr    string
		metricsAddr string
		modeName    string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run cycles on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			ctx := cmd.Context()

			reg := prometheus.NewRegistry()
			p, cleanup, err := app.Build(ctx, cfg, app.BuildOptions{
				Mode:    modeName,
				Metrics: metrics.New(reg),
			}, log)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer cleanup()

			cronLog := logger.CronLogger{L: log}
			c := cron.New(
				cron.WithLocation(cfg.Location()),
				cron.WithLogger(cronLog),
				cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
			)
			if _, err := c.AddFunc(cronExpr, func() {
				// Errors are already logged by the pipeline.
				_, _ = p.Run(ctx)
			}); err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
			}

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("Metrics server stopped", logger.Error(err))
					}
				}()
				log.Info("Metrics server listening", logger.String("addr", metricsAddr))
			}

			c.Start()
			log.Info("Scheduler started", logger.String("cron", cronExpr))
			<-ctx.Done()

			log.Info("Shutting down scheduler")
			<-c.Stop().Done()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("Metrics server shutdown failed", logger.Error(err))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "*/30 * * * *", "five-field cron expression")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address of the /metrics endpoint, empty to disable")
	cmd.Flags().StringVar(&modeName, "mode", "", "report mode override")
	return cmd
}
