package main

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/pattern"
	"github.com/strrl/clusterlog/pkg/querier"
	"github.com/strrl/clusterlog/pkg/semantic"
)

func templatesCmd() *cobra.Command {
	var (
		runID string
		label bool
	)
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Mine message templates from a stored run",
		Long: `Group the matched messages of a stored run into Drain templates and list them,
most frequent first. With --label an LLM names each template.

--label requires the OPENROUTER_API_KEY environment variable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTemplates(cmd, runID, label)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID (default: latest run)")
	cmd.Flags().BoolVar(&label, "label", false, "add semantic labels using an LLM")
	cmd.Flags().String("model", "", "LLM model to use (default: $MODEL_NAME or google/gemini-3-flash-preview)")
	return cmd
}

func runTemplates(cmd *cobra.Command, runID string, label bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var apiKey string
	if label {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return errors.New("OPENROUTER_API_KEY environment variable is required")
		}
	}

	s, err := openStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	q := querier.NewQuerier(s)
	runID, err = q.ResolveRun(ctx, runID)
	if err != nil {
		return err
	}

	templates, err := pattern.MineRun(ctx, s, runID)
	if err != nil {
		return errors.Errorf("mine templates: %w", err)
	}

	if label && len(templates) > 0 {
		fmt.Fprintf(os.Stderr, "Labeling %d templates...\n", len(templates))
		l, err := semantic.NewLabeler(ctx, semantic.Config{APIKey: apiKey, Model: cfg.Model})
		if err != nil {
			return err
		}
		if _, err := semantic.LabelRun(ctx, s, l, runID); err != nil {
			return errors.Errorf("label: %w", err)
		}
	}

	summaries, err := q.Summary(ctx, runID)
	if err != nil {
		return errors.Errorf("query: %w", err)
	}

	fmt.Printf("%-36s %-8s %-30s %s\n", "ID", "COUNT", "LABEL", "TEMPLATE")
	for _, ts := range summaries {
		fmt.Printf("%-36s %-8d %-30s %s\n", ts.TemplateID, ts.Count, ts.SemanticID, ts.Pattern)
		if ts.Description != "" {
			fmt.Printf("%-36s %-8s %s\n", "", "", ts.Description)
		}
	}
	fmt.Fprintf(os.Stderr, "\n%d templates in run %s\n", len(summaries), runID)
	return nil
}
