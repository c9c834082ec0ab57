package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tasktune/fatigue/internal/config"
	"github.com/tasktune/fatigue/internal/domain/checkpoint"
)

func newInspectCmd() *cobra.Command {
	var (
		checkpointPath string
		format         string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the checkpoint summary: features, normalization and layer shapes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), checkpointPath, format)
		},
	}

	cmd.Flags().StringVar(&checkpointPath, "checkpoint", config.New().CheckpointPath, "checkpoint file")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func runInspect(ctx context.Context, w io.Writer, checkpointPath, format string) error {
	params, err := checkpoint.Load(ctx, checkpointPath)
	if err != nil {
		return err
	}
	summary := params.Summary()

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: want yaml or json", format)
	}
}
