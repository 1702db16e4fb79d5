package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/analyzer"
)

func explainCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "explain [question]",
		Short: "Let an AI agent explain the failures in a log directory",
		Long: `Scan a log directory into a workspace, then let an AI agent explore it and
explain what went wrong.

Requires OPENROUTER_API_KEY environment variable to be set.

Examples:
  clusterlog explain -d ./sosreport
  clusterlog explain -d ./sosreport "why was node2 fenced at 03:20?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, args, outDir)
		},
	}
	addScanFlags(cmd)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "keep the workspace in this directory (default: temporary)")
	cmd.Flags().String("model", "", "override LLM model (default: $MODEL_NAME or google/gemini-3-flash-preview)")
	return cmd
}

func runExplain(cmd *cobra.Command, args []string, outDir string) error {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return errors.New("OPENROUTER_API_KEY environment variable is required")
	}
	var question string
	if len(args) > 0 {
		question = args[0]
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir := outDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "clusterlog-explain-*")
		if err != nil {
			return errors.Errorf("create temp dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		dir = tmp
	}

	if err := buildWorkspace(cmd.Context(), cfg, dir, time.Now()); err != nil {
		return err
	}

	result, err := analyzer.Analyze(cmd.Context(), analyzer.Config{
		APIKey: apiKey,
		Model:  cfg.Model,
	}, dir, question)
	if err != nil {
		return err
	}

	fmt.Println(result)
	return nil
}
