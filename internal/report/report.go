// Package report renders scan results as Markdown documents, one report per
// crash log.
package report

import (
	"fmt"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// Suffix is appended to a crash log's stem to form its report file name.
const Suffix = "-AUTOSCAN.md"

// FileName returns the report file name for a crash-log file name.
func FileName(logName string) string {
	stem := logName
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}
	return stem + Suffix
}

// Render produces the Markdown report for one scan result.
func Render(r *crashlens.ScanResult) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Crash Log Analysis: %s\n\n", r.LogName)
	if r.GameVersion != "" {
		fmt.Fprintf(&b, "- Game: %s\n", r.GameVersion)
	}
	if r.CrashGenVersion != "" {
		fmt.Fprintf(&b, "- Crash generator: %s\n", r.CrashGenVersion)
	}
	if r.GPU.Primary != "" {
		fmt.Fprintf(&b, "- GPU: %s\n", r.GPU.Primary)
	}
	b.WriteString("\n")

	if r.MainError != "" {
		b.WriteString("## Main Error\n\n```\n")
		b.WriteString(r.MainError)
		b.WriteString("\n```\n\n")
	}

	if r.Incomplete {
		b.WriteString("> **Note:** this log has no plugin list. ")
		b.WriteString("Loading the game at least once past the main menu lets the crash generator record one, ")
		b.WriteString("which makes future reports far more precise.\n\n")
	}

	renderSuspects(&b, r.Suspects)
	renderConflicts(&b, r.ModConflicts)
	renderSettings(&b, r.SettingsIssues)
	renderPlugins(&b, r)
	renderFormIDs(&b, r)
	renderRecords(&b, r.Records)

	if len(r.AnalyzerErrors) > 0 {
		b.WriteString("## Scan Warnings\n\n")
		for _, err := range r.AnalyzerErrors {
			fmt.Fprintf(&b, "- %v\n", err)
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func renderSuspects(b *strings.Builder, suspects []crash.Suspect) {
	b.WriteString("## Crash Suspects\n\n")
	if len(suspects) == 0 {
		b.WriteString("No known crash signatures matched.\n\n")
		return
	}
	for _, s := range suspects {
		fmt.Fprintf(b, "### %s (severity %d, confidence %.0f%%)\n\n", s.Name, s.Severity, s.Confidence*100)
		if s.Description != "" {
			b.WriteString(s.Description + "\n\n")
		}
		if len(s.MatchedPatterns) > 0 {
			fmt.Fprintf(b, "Matched: `%s`\n\n", strings.Join(s.MatchedPatterns, "`, `"))
		}
		for _, sol := range s.Solutions {
			fmt.Fprintf(b, "- Fix: %s\n", sol)
		}
		if s.DocumentationURL != "" {
			fmt.Fprintf(b, "- See: %s\n", s.DocumentationURL)
		}
		if len(s.Solutions) > 0 || s.DocumentationURL != "" {
			b.WriteString("\n")
		}
	}
}

func renderConflicts(b *strings.Builder, conflicts []crash.ModConflict) {
	if len(conflicts) == 0 {
		return
	}
	b.WriteString("## Mod Compatibility\n\n")
	for _, c := range conflicts {
		fmt.Fprintf(b, "- **[%s]** %s: %s\n", strings.ToUpper(c.Severity.String()), c.ModName, c.Warning)
		if c.Solution != "" {
			fmt.Fprintf(b, "  - Solution: %s\n", c.Solution)
		}
	}
	b.WriteString("\n")
}

func renderSettings(b *strings.Builder, issues []crash.SettingsIssue) {
	if len(issues) == 0 {
		return
	}
	b.WriteString("## Crash Generator Settings\n\n")
	for _, issue := range issues {
		fmt.Fprintf(b, "- **%s**: %s\n", issue.Setting, issue.Warning)
		if issue.Fix != "" {
			fmt.Fprintf(b, "  - Fix: %s\n", issue.Fix)
		}
	}
	b.WriteString("\n")
}

func renderPlugins(b *strings.Builder, r *crashlens.ScanResult) {
	if r.PluginCounts.Total == 0 && len(r.StackMatches) == 0 {
		return
	}
	b.WriteString("## Plugins\n\n")
	fmt.Fprintf(b, "%d plugins loaded (%d masters, %d light, %d regular).\n\n",
		r.PluginCounts.Total, r.PluginCounts.Masters, r.PluginCounts.Light, r.PluginCounts.Regular)

	for _, issue := range r.PluginIssues {
		fmt.Fprintf(b, "- %s\n", issue)
	}
	if len(r.PluginIssues) > 0 {
		b.WriteString("\n")
	}

	if len(r.StackMatches) > 0 {
		b.WriteString("Plugins referenced by the call stack (most frequent first):\n\n")
		for _, m := range r.StackMatches {
			fmt.Fprintf(b, "- %s: %d\n", m.Name, m.Count)
		}
		b.WriteString("\n")
	}
}

func renderFormIDs(b *strings.Builder, r *crashlens.ScanResult) {
	if len(r.FormIDs) == 0 && len(r.FormIDWarnings) == 0 {
		return
	}
	b.WriteString("## Form IDs\n\n")
	for _, id := range r.FormIDs {
		fmt.Fprintf(b, "- `%08X`", id.Value)
		if id.SourcePlugin != "" {
			fmt.Fprintf(b, " from %s", id.SourcePlugin)
		}
		if id.FormType != "" {
			fmt.Fprintf(b, " (%s)", id.FormType)
		}
		if id.Description != "" {
			fmt.Fprintf(b, ": %s", id.Description)
		}
		if id.Count > 1 {
			fmt.Fprintf(b, " (x%d)", id.Count)
		}
		b.WriteString("\n")
	}
	for _, warning := range r.FormIDWarnings {
		fmt.Fprintf(b, "- **Warning:** %s\n", warning)
	}
	b.WriteString("\n")
}

func renderRecords(b *strings.Builder, matches []crash.RecordMatch) {
	if len(matches) == 0 {
		return
	}
	b.WriteString("## Named Records\n\n")
	for _, m := range matches {
		fmt.Fprintf(b, "- `%s` (x%d)\n", m.Text, m.Count)
	}
	b.WriteString("\n")
}
