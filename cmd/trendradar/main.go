// Command trendradar crawls hot-list platforms, matches titles against
// interest groups and pushes reports to the configured channels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	configPath string
	envPath    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "trendradar",
		Short:         "Hot-list monitor with keyword alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config/config.yaml", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&flags.envPath, "env", ".env", "optional dotenv file with secrets")

	root.AddCommand(
		newRunCmd(flags),
		newScheduleCmd(flags),
		newKeywordsCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "trendradar %s\n", version)
			},
		},
	)
	return root
}

// load reads .env, the configuration and builds the logger.
func (f *globalFlags) load() (config.Root, logger.Logger, error) {
	config.LoadDotEnv(f.envPath)

	cfg, err := config.LoadRoot(f.configPath)
	if err != nil {
		return config.Root{}, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return config.Root{}, nil, err
	}
	return cfg, log, nil
}
