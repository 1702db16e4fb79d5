package main

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/querier"
	"github.com/strrl/clusterlog/pkg/signature"
	"github.com/strrl/clusterlog/pkg/store"
)

func queryCmd() *cobra.Command {
	var (
		runID   string
		host    string
		pattern  string
		template string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored events of a run",
		Long: `List matched events stored by a previous analysis, oldest first.

--pattern takes the pattern as written in the pattern file; it is compiled
the same way so "error" selects events counted under \berror\b.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := store.QueryOpts{RunID: runID, Host: host, TemplateID: template, Limit: limit}
			return runQuery(cmd, opts, pattern)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID (default: latest run)")
	cmd.Flags().StringVar(&host, "host", "", "only events from this host")
	cmd.Flags().StringVar(&pattern, "pattern", "", "only events counted under this pattern")
	cmd.Flags().StringVar(&template, "template", "", "only events assigned to this template ID (see templates)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events (0 for all)")
	return cmd
}

func runQuery(cmd *cobra.Command, opts store.QueryOpts, pattern string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if pattern != "" {
		p, err := signature.Compile(pattern)
		if err != nil {
			return err
		}
		opts.Pattern = p.Source
	}

	s, err := openStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	q := querier.NewQuerier(s)
	var events []store.Event
	if opts.TemplateID != "" && opts.Host == "" && opts.Pattern == "" {
		events, err = q.ByTemplate(ctx, opts.RunID, opts.TemplateID)
	} else {
		events, err = q.Search(ctx, opts)
	}
	if err != nil {
		return errors.Errorf("query: %w", err)
	}

	for _, e := range events {
		fmt.Printf("%s %s [%s] %s\n", e.Time.Format("2006-01-02 15:04:05"), e.Host, e.Pattern, e.Message)
	}
	fmt.Fprintf(os.Stderr, "\n%d events found\n", len(events))
	return nil
}
