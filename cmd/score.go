package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	app "github.com/tasktune/fatigue/internal/app"
	"github.com/tasktune/fatigue/internal/domain/model"
	"github.com/tasktune/fatigue/pkg/logger"
)

type scoreOutput struct {
	Fatigue      float64   `json:"fatigue"`
	Standardized []float64 `json:"standardized"`
	Clamped      bool      `json:"clamped"`
}

func newScoreCmd(cfgFile *string) *cobra.Command {
	var (
		in             model.FeatureVector
		checkpointPath string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one feature vector locally and print JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd.Context(), cmd.OutOrStdout(), *cfgFile, checkpointPath, in)
		},
	}

	cmd.Flags().Float64Var(&in.MET, "met", 0, "metabolic equivalent of the activity")
	cmd.Flags().IntVar(&in.DurationMin, "duration", 0, "duration in minutes")
	cmd.Flags().Float64Var(&in.Preference01, "preference", 0, "preference in [0, 1]")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file (default: checkpoint_path from config)")
	for _, name := range []string{"met", "duration", "preference"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runScore(ctx context.Context, w io.Writer, cfgFile, checkpointPath string, in model.FeatureVector) error {
	cfg, _, err := loadConfig(ctx, cfgFile)
	if err != nil {
		return err
	}
	if checkpointPath == "" {
		checkpointPath = cfg.CheckpointPath
	}

	// Logs go to stderr so stdout stays machine readable.
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to set log level: %w", err)
	}

	svc := app.New(app.WithCheckpointPath(checkpointPath))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	res, err := svc.Predict(ctx, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	return enc.Encode(scoreOutput{
		Fatigue:      res.Fatigue,
		Standardized: res.Standardized[:],
		Clamped:      res.Clamped,
	})
}
