package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens"
)

// ValidFormats lists all valid output formats.
var ValidFormats = map[string]bool{
	"jsonl":  true,
	"pretty": true,
}

// OutputResult writes a scan result in the specified format to the writer.
func OutputResult(format string, result *crashlens.ScanResult, out io.Writer) error {
	switch format {
	case "jsonl":
		return OutputJSON(result, out)
	case "pretty":
		return OutputPretty(result, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// jsonResult flattens analyzer errors to strings for JSON output.
type jsonResult struct {
	*crashlens.ScanResult
	AnalyzerErrors []string `json:",omitempty"`
}

// OutputJSON writes a scan result as JSON Lines format.
func OutputJSON(result *crashlens.ScanResult, out io.Writer) error {
	view := jsonResult{ScanResult: result}
	for _, err := range result.AnalyzerErrors {
		view.AnalyzerErrors = append(view.AnalyzerErrors, err.Error())
	}
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// OutputPretty writes a scan result in human-readable format.
func OutputPretty(result *crashlens.ScanResult, out io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", result.LogName)
	if result.MainError != "" {
		fmt.Fprintf(&b, "  error: %s\n", firstLine(result.MainError))
	}
	if result.Incomplete {
		b.WriteString("  note: no plugin list in this log\n")
	}

	for _, s := range result.Suspects {
		fmt.Fprintf(&b, "  [%d] %s (%.0f%%)\n", s.Severity, s.Name, s.Confidence*100)
	}
	for _, c := range result.ModConflicts {
		fmt.Fprintf(&b, "  %s: %s\n", c.Severity, c.ModName)
	}
	for _, issue := range result.SettingsIssues {
		fmt.Fprintf(&b, "  setting %s: %s\n", issue.Setting, firstLine(issue.Warning))
	}
	for _, warning := range result.FormIDWarnings {
		fmt.Fprintf(&b, "  formid: %s\n", warning)
	}
	if result.PluginCounts.Total > 0 {
		fmt.Fprintf(&b, "  plugins: %d\n", result.PluginCounts.Total)
	}

	_, err := io.WriteString(out, b.String())
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
