package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crashlens/crashlens-go/pkg/crashlens"
)

var (
	// watch flags
	watchRules      string
	watchFormIDDB   string
	watchLogDir     string
	watchFormat     string
	watchOutputDir  string
	watchQuiescence time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for new crash logs and scan them as they appear",
	Long: `Watch the crash-log directory and scan each new log once the crash
generator has finished writing it.

Examples:
  # Watch the auto-detected directory
  crashlens watch --rules rules.yaml

  # Watch a specific directory with pretty output
  crashlens watch --rules rules.yaml --log-dir /path/to/F4SE --format pretty

  # Also write a Markdown report per crash
  crashlens watch --rules rules.yaml --output-dir reports/`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchRules, "rules", "r", "",
		"YAML rules file (required)")
	watchCmd.Flags().StringVar(&watchFormIDDB, "formid-db", "",
		"SQLite database of FormID descriptions")
	watchCmd.Flags().StringVarP(&watchLogDir, "log-dir", "d", "",
		"Crash log directory (auto-detected if not specified)")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	watchCmd.Flags().StringVarP(&watchOutputDir, "output-dir", "o", "",
		"Directory for per-log Markdown reports (disabled if not specified)")
	watchCmd.Flags().DurationVar(&watchQuiescence, "quiescence", 0,
		"How long a new log must be idle before scanning (default 2s)")

	_ = watchCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !ValidFormats[watchFormat] {
		return fmt.Errorf("unknown format: %s", watchFormat)
	}

	scanner, err := newScanner(watchRules, watchFormIDDB)
	if err != nil {
		return err
	}
	defer scanner.Close()

	watcher, err := crashlens.NewWatcher(scanner,
		crashlens.WithWatchDir(watchLogDir),
		crashlens.WithQuiescence(watchQuiescence),
		crashlens.WithWatchLogger(newLogger()),
	)
	if err != nil {
		return err
	}
	defer watcher.Close()

	results, errs, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", watcher.Dir())

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return nil
			}
			if r.Err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", r.Err)
				continue
			}
			if err := OutputResult(watchFormat, r.Result, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
			if watchOutputDir != "" {
				if err := writeReport(watchOutputDir, r.Result); err != nil {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}

		case <-ctx.Done():
			return nil
		}
	}
}
