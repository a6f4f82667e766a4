package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crashlens/crashlens-go/internal/report"
	"github.com/crashlens/crashlens-go/internal/safefile"
	"github.com/crashlens/crashlens-go/pkg/crashlens"
)

var (
	// scan flags
	scanRules     string
	scanFormIDDB  string
	scanLogDir    string
	scanFormat    string
	scanOutputDir string
	scanJobs      int
	scanGame      string
	scanCrashGen  string
)

var scanCmd = &cobra.Command{
	Use:   "scan [crash-log ...]",
	Short: "Scan crash logs and report probable causes",
	Long: `Scan one or more crash logs against a rules file.

With no arguments, every crash log in the log directory is scanned
(auto-detected if --log-dir is not given, honoring CRASHLENS_LOGDIR).

Results are output as JSON Lines by default (one JSON object per log),
which makes it easy to process with tools like jq.

Examples:
  # Scan every log in the auto-detected directory
  crashlens scan --rules rules.yaml

  # Scan specific logs with human-readable output
  crashlens scan --rules rules.yaml --format pretty crash-*.log

  # Write Markdown reports next to each result
  crashlens scan --rules rules.yaml --output-dir reports/ crash-*.log

  # Annotate FormIDs from a description database
  crashlens scan --rules rules.yaml --formid-db databases/fallout4.db`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanRules, "rules", "r", "",
		"YAML rules file (required)")
	scanCmd.Flags().StringVar(&scanFormIDDB, "formid-db", "",
		"SQLite database of FormID descriptions")
	scanCmd.Flags().StringVarP(&scanLogDir, "log-dir", "d", "",
		"Crash log directory (auto-detected if not specified)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	scanCmd.Flags().StringVarP(&scanOutputDir, "output-dir", "o", "",
		"Directory for per-log Markdown reports (disabled if not specified)")
	scanCmd.Flags().IntVarP(&scanJobs, "jobs", "j", 0,
		"Concurrent scan workers (0 = number of CPUs, capped at 8)")
	scanCmd.Flags().StringVar(&scanGame, "game", "",
		"Game identifier for the FormID database table")
	scanCmd.Flags().StringVar(&scanCrashGen, "crashgen", "",
		"Crash generator name expected in log headers")

	_ = scanCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !ValidFormats[scanFormat] {
		return fmt.Errorf("unknown format: %s", scanFormat)
	}

	scanner, err := newScanner(scanRules, scanFormIDDB)
	if err != nil {
		return err
	}
	defer scanner.Close()

	var results []crashlens.FileResult
	var stats crashlens.Stats
	if len(args) > 0 {
		results, stats, err = scanner.ScanFiles(ctx, args)
	} else {
		results, stats, err = scanner.ScanDir(ctx, scanLogDir)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", r.Path, r.Err)
			continue
		}
		if err := OutputResult(scanFormat, r.Result, out); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if scanOutputDir != "" {
			if err := writeReport(scanOutputDir, r.Result); err != nil {
				return err
			}
		}
	}

	if verbose || scanFormat == "pretty" {
		fmt.Fprintf(out, "\n%d scanned, %d incomplete, %d failed\n",
			stats.Scanned, stats.Incomplete, stats.Failed)
	}
	if stats.Failed > 0 && stats.Scanned == 0 {
		return fmt.Errorf("all %d logs failed to scan", stats.Failed)
	}
	return nil
}

func newScanner(rulesPath, formIDDB string) (*crashlens.Scanner, error) {
	opts := []crashlens.Option{
		crashlens.WithRulesFile(rulesPath),
		crashlens.WithLogger(newLogger()),
		crashlens.WithWorkers(scanJobs),
	}
	if formIDDB != "" {
		opts = append(opts, crashlens.WithFormIDDatabase(formIDDB))
	}
	if scanGame != "" {
		opts = append(opts, crashlens.WithGame(scanGame))
	}
	if scanCrashGen != "" {
		opts = append(opts, crashlens.WithCrashGenName(scanCrashGen))
	}
	return crashlens.New(opts...)
}

func writeReport(dir string, result *crashlens.ScanResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, report.FileName(result.LogName))
	if err := safefile.WriteAtomic(path, report.Render(result), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
