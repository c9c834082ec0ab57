package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasktune/fatigue/internal/probe"
	"github.com/tasktune/fatigue/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumVectors   = 5000
	defaultInvalidShare = 0.2
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 10 * time.Second
	defaultDeterminism  = 100
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "probe failed:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &probe.Config{}
	var (
		verbose    bool
		logFormat  string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:           "probe",
		Short:         "Check a running fatigue service end to end",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat)); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			if verbose {
				_ = logger.SetLevelString("debug")
			}
			cfg.Verbose = verbose

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			_, err := probe.Run(ctx, cfg)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "url", "http://localhost:8000", "base URL of the service")
	flags.IntVar(&cfg.NumVectors, "vectors", defaultNumVectors, "number of feature vectors to generate and submit")
	flags.Float64Var(&cfg.InvalidShare, "invalid-share", defaultInvalidShare, "fraction of vectors made deliberately out of range")
	flags.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent workers")
	flags.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	flags.IntVar(&cfg.DeterminismRuns, "determinism", defaultDeterminism, "number of vectors re-submitted to check determinism")
	flags.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "seed for vector generation")
	flags.StringVar(&cfg.OutputFile, "output", "", "write every outcome to this JSON file")
	flags.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "overall probe deadline")
	flags.StringVar(&logFormat, "log-format", logger.FormatText, "log format: text or json")
	flags.BoolVar(&verbose, "verbose", false, "log every failed check")
	return cmd
}
