package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tasktune/fatigue/internal/config"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "fatigued",
		Short:         "Serve and inspect the workout fatigue model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $"+config.EnvConfigFile+")")

	root.AddCommand(newServeCmd(&cfgFile))
	root.AddCommand(newScoreCmd(&cfgFile))
	root.AddCommand(newInspectCmd())

	return root
}

// loadConfig resolves the config file from --config or FATIGUE_CONFIG and
// loads it over defaults and env. It returns the resolved path.
func loadConfig(ctx context.Context, cfgFile string) (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}
