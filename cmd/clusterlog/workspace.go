package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/analyzer/workspace"
	"github.com/strrl/clusterlog/pkg/config"
	"github.com/strrl/clusterlog/pkg/report"
	"github.com/strrl/clusterlog/pkg/scan"
)

func workspaceCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Scan a log directory into an analysis workspace",
		Long: `Scan a log directory and write the report, the per-host timelines, the raw
matches and the mined message templates into one directory, ready for manual
or agent-driven investigation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			now := time.Now()
			if outDir == "" {
				outDir = "clusterlog-workspace-" + report.Stamp(now)
			}
			if err := buildWorkspace(cmd.Context(), cfg, outDir, now); err != nil {
				return err
			}
			fmt.Println(outDir)
			return nil
		},
	}
	addScanFlags(cmd)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "workspace directory (default clusterlog-workspace-<stamp>)")
	return cmd
}

// buildWorkspace scans cfg.Directory and writes the workspace into dir.
func buildWorkspace(ctx context.Context, cfg config.Config, dir string, now time.Time) error {
	var matches bytes.Buffer
	opts, err := prepareScan(cfg, now, &matches)
	if err != nil {
		return err
	}
	res, err := scan.Run(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Scanned %d files, %d matches\n", res.FilesSelected, res.Matches)

	if err := workspace.NewBuilder(dir, res.Aggregator, matches.Bytes(), now).BuildAll(); err != nil {
		return errors.Errorf("build workspace: %w", err)
	}
	return nil
}
