package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/report"
)

var (
	runSources   []string
	runOutputDir string
	runFormats   []string
	runPerSource bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured source once and write the result",
	Long:  "Fetches, extracts, normalizes and scores leads from the selected sources (all by default), then writes the run document and reports to the output directory. Per-source failures are reported in the summary and do not fail the command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		formats := cfg.Run.Formats
		if len(runFormats) > 0 {
			formats = runFormats
		}
		parsed, err := report.ParseFormats(formats)
		if err != nil {
			return err
		}
		outDir := cfg.Run.OutputDir
		if runOutputDir != "" {
			outDir = runOutputDir
		}
		names := cfg.Sources.Enabled
		if len(runSources) > 0 {
			names = runSources
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Run(ctx, names)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			zap.L().Warn("run: interrupted, writing partial result", zap.String("run_id", result.RunID))
		}

		paths, err := report.WriteAll(outDir, result, parsed, report.Options{
			Band:          env.Scorer.Band(),
			MinConfidence: cfg.Report.MinConfidence,
			PerSource:     cfg.Report.PerSource || runPerSource,
		})
		if err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), result, paths)
		return nil
	},
}

func printSummary(w io.Writer, r *model.RunResult, paths []string) {
	t := r.Summary.Totals
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "Sources: %d ok / %d total\n", t.Sources-t.SourcesFailed, t.Sources)
	fmt.Fprintf(w, "Leads:   %d\n", t.Leads)
	for _, s := range r.Summary.Sources {
		line := fmt.Sprintf("  - %-18s %-10s leads=%d attempts=%d", s.Source, s.Status, s.Leads, s.Attempts)
		if s.Failure != model.FailureNone {
			line += " failure=" + string(s.Failure)
		}
		fmt.Fprintln(w, line)
	}
	for _, p := range paths {
		fmt.Fprintf(w, "Wrote %s\n", p)
	}
}

func init() {
	runCmd.Flags().StringSliceVar(&runSources, "sources", nil, "source names to run (default: sources.enabled, or all)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "output directory (default from config)")
	runCmd.Flags().StringSliceVar(&runFormats, "format", nil, "output formats: json, csv, xlsx, md (default from config)")
	runCmd.Flags().BoolVar(&runPerSource, "per-source", false, "also write one JSON document per source")
	rootCmd.AddCommand(runCmd)
}
