package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/report"
	"github.com/strrl/clusterlog/pkg/scan"
)

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	now := time.Now()
	opts, err := prepareScan(cfg, now, nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return errors.Errorf("create output dir: %w", err)
	}

	reportPath := filepath.Join(cfg.OutputDir, report.FileName(now))
	f, err := os.Create(reportPath)
	if err != nil {
		return errors.Errorf("create report: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := io.MultiWriter(os.Stdout, f)
	opts.Output = out

	res, err := scan.Run(ctx, opts)
	if err != nil {
		return err
	}
	if err := report.Render(out, res.Aggregator, now); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("close report: %w", err)
	}

	hostFiles, err := report.WriteHostFiles(cfg.OutputDir, report.Stamp(now), res.Aggregator)
	if err != nil {
		return err
	}
	for _, p := range hostFiles {
		slog.Info("Output saved to file", "path", p)
	}

	if cfg.YAML {
		yamlPath := strings.TrimSuffix(reportPath, ".txt") + ".yaml"
		if err := writeYAML(yamlPath, res, now); err != nil {
			return err
		}
		slog.Info("Output saved to file", "path", yamlPath)
	}
	slog.Info("Output saved to file", "path", reportPath)

	if cfg.DB != "" {
		s, err := openStore(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		runID, err := scan.Persist(ctx, s, res, cfg.Directory, now)
		if err != nil {
			return err
		}
		slog.Info("Run stored", "run", runID, "db", cfg.DB)
	}

	fmt.Fprintf(os.Stderr, "\n%d files read (%d skipped, %d failed), %d lines, %d matches, %d without timestamp\n",
		res.FilesSelected, res.FilesSkipped, res.FilesFailed, res.Lines, res.Matches, res.Unparsed)
	return nil
}

func writeYAML(path string, res *scan.Result, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Errorf("create yaml export: %w", err)
	}
	if err := report.ExportYAML(f, res.Aggregator, now); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("close yaml export: %w", err)
	}
	return nil
}
