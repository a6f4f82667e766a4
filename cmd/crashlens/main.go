// Command crashlens analyzes game crash logs for probable causes.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "crashlens",
	Short: "Analyze game crash logs for probable causes",
	Long: `crashlens analyzes crash logs written by crash-generator script
extender plugins. It matches known crash signatures, decodes FormIDs,
cross-references installed mods against compatibility tables, and flags
problematic crash-generator settings.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging to stderr")
}

// newLogger returns a debug logger when --verbose is set, otherwise a logger
// that discards everything.
func newLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
