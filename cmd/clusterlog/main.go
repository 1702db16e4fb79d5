package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/strrl/clusterlog/pkg/tracing"
)

var (
	configPath string
	verbose    bool
)

func main() {
	// Load .env file if present (does not override existing env vars)
	_ = godotenv.Load()

	ctx := context.Background()
	flush := tracing.InitLangfuse()
	shutdown, err := tracing.InitOTel(ctx)
	if err != nil {
		slog.Warn("opentelemetry disabled", "err", err)
		shutdown = func(context.Context) error { return nil }
	}

	root := rootCmd()
	err = root.ExecuteContext(ctx)
	flush()
	if serr := shutdown(ctx); serr != nil {
		slog.Warn("flush traces", "err", serr)
	}

	if err != nil {
		slog.Error("clusterlog failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clusterlog",
		Short: "Cluster log failure statistics",
		Long: `clusterlog scans cluster log archives (system logs, corosync, pacemaker) for
known failure signatures and reports how often each one hit every host, hour
by hour.

Examples:
  clusterlog -d /var/log/cluster-bundle
  clusterlog -d ./sosreport --retention-days 7 --yaml
  clusterlog query --host node1 --pattern fenc
  clusterlog explain -d ./sosreport "why was node2 fenced?"`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(verbose)
		},
		RunE: runAnalyze,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.config/clusterlog/config.yml)")
	root.PersistentFlags().String("db", "clusterlog.duckdb", `path to DuckDB run history ("" disables it)`)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug details such as file selection decisions")
	addScanFlags(root)
	root.Flags().String("output-dir", ".", "directory for the report and per-host files")
	root.Flags().Bool("yaml", false, "also export the statistics as YAML")

	root.AddCommand(runsCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(templatesCmd())
	root.AddCommand(workspaceCmd())
	root.AddCommand(explainCmd())
	return root
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
