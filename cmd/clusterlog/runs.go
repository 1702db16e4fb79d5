package main

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/querier"
)

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored analysis runs",
		RunE:  runRuns,
	}
}

func runRuns(cmd *cobra.Command, _ []string) error {
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

	runs, err := querier.NewQuerier(s).Runs(ctx)
	if err != nil {
		return errors.Errorf("query: %w", err)
	}

	fmt.Printf("%-36s %-19s %-6s %-8s %-8s %s\n", "RUN", "STARTED", "FILES", "MATCHES", "NO-TIME", "DIRECTORY")
	for _, r := range runs {
		fmt.Printf("%-36s %-19s %-6d %-8d %-8d %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.FilesSelected, r.Matches, r.Unparsed, r.Root)
	}
	fmt.Fprintf(os.Stderr, "\n%d runs found\n", len(runs))
	return nil
}
