package main

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/querier"
)

func statsCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the hourly counts of a stored run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			buckets, err := querier.NewQuerier(s).Buckets(ctx, runID)
			if err != nil {
				return errors.Errorf("query: %w", err)
			}
			fmt.Printf("%-20s %-14s %-6s %s\n", "HOST", "HOUR", "COUNT", "PATTERN")
			for _, b := range buckets {
				fmt.Printf("%-20s %-14s %-6d %s\n", b.Host, b.Hour, b.Count, b.Pattern)
			}
			fmt.Fprintf(os.Stderr, "\n%d buckets found\n", len(buckets))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID (default: latest run)")
	return cmd
}
