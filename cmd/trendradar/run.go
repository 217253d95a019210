package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maine/trendradar/internal/app"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/metrics"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var modeName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one crawl and report cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			p, cleanup, err := app.Build(cmd.Context(), cfg, app.BuildOptions{
				Mode:    modeName,
				Metrics: metrics.New(nil),
			}, log)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer cleanup()

			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(cmd, "realtime", res.Realtime)
			printOutcome(cmd, "summary", res.Summary)
			log.Info("Run completed", logger.String("run_id", res.RunID))
			return nil
		},
	}
	cmd.Flags().StringVar(&modeName, "mode", "", "report mode: daily, incremental or current (default from config)")
	return cmd
}

func printOutcome(cmd *cobra.Command, label string, out *app.Outcome) {
	if out == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s, %d matches, %d new)\n",
		label, out.Decision, out.Report.Kind, out.Report.TotalMatches(), out.Report.NewTitles.Total())
}
