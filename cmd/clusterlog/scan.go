package main

import (
	"context"
	"io"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/config"
	"github.com/strrl/clusterlog/pkg/ingestor"
	"github.com/strrl/clusterlog/pkg/scan"
	"github.com/strrl/clusterlog/pkg/selector"
	"github.com/strrl/clusterlog/pkg/signature"
	"github.com/strrl/clusterlog/pkg/store"
	"github.com/strrl/clusterlog/pkg/timestamp"
)

// addScanFlags registers the flags every scanning command shares. Their
// names are the config keys they override.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("directory", "d", "", "directory containing log files (required)")
	cmd.Flags().String("pattern-file", signature.DefaultFile, "failure signature file, one regex per line")
	cmd.Flags().Int("retention-days", 60, "ignore files and lines older than this many days (0 keeps all)")
	cmd.Flags().StringSlice("keywords", selector.DefaultKeywords, "file name keywords that select a log file")
	cmd.Flags().Bool("materialize", true, "write decompressed copies next to .gz/.xz files")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return cfg, errors.Errorf("config: %w", err)
	}
	return cfg, nil
}

// prepareScan validates the scan configuration and builds the scan
// options. Nothing is written before it succeeds.
func prepareScan(cfg config.Config, now time.Time, out io.Writer) (scan.Options, error) {
	if err := config.ValidateDirectory(cfg.Directory); err != nil {
		return scan.Options{}, err
	}
	patterns, err := signature.Load(cfg.PatternFile)
	if err != nil {
		return scan.Options{}, err
	}

	sel := selector.New(now)
	sel.Keywords = cfg.Keywords
	sel.Retention = cfg.Retention()

	reader := ingestor.NewReader()
	reader.Materialize = cfg.Materialize

	return scan.Options{
		Root:       cfg.Directory,
		Patterns:   patterns,
		Now:        now,
		Selector:   sel,
		Reader:     reader,
		Normalizer: timestamp.NewNormalizer(now, cfg.Retention()),
		Output:     out,
	}, nil
}

func openStore(ctx context.Context, dbPath string) (*store.DuckDBStore, error) {
	if dbPath == "" {
		return nil, errors.New(`run history is disabled (--db "")`)
	}
	s, err := store.NewDuckDBStore(dbPath)
	if err != nil {
		return nil, errors.Errorf("store: %w", err)
	}
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, errors.Errorf("store init: %w", err)
	}
	return s, nil
}
