package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crashlens/crashlens-go/internal/report"
	"github.com/crashlens/crashlens-go/pkg/crashlens"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "crash-2024-05-26-AUTOSCAN.md", report.FileName("crash-2024-05-26.log"))
	assert.Equal(t, "noext-AUTOSCAN.md", report.FileName("noext"))
	assert.Equal(t, ".hidden-AUTOSCAN.md", report.FileName(".hidden"))
}

func TestRender(t *testing.T) {
	result := &crashlens.ScanResult{
		LogName:         "crash-2024-05-26.log",
		GameVersion:     "Fallout 4 v1.10.163",
		CrashGenVersion: "Buffout 4 v1.26.2",
		MainError:       `Unhandled exception "EXCEPTION_ACCESS_VIOLATION"`,
		GPU:             crash.GPUInfo{Primary: "Nvidia GA104", Vendor: "nvidia", Rival: "amd"},
		Suspects: []crash.Suspect{
			{
				Name:            "DLL Crash",
				Description:     "A DLL file was involved in this crash.",
				Severity:        5,
				Confidence:      0.7,
				MatchedPatterns: []string{".dll"},
				Solutions:       []string{"Check the DLL's mod page for an update."},
			},
		},
		PluginCounts: crash.PluginCounts{Total: 6, Masters: 4, Light: 1, Regular: 1},
		StackMatches: []crash.PluginMatch{{Name: "homemaker.esm", Count: 2}},
		FormIDs: []crash.FormID{
			{Value: 0x01008196, SourcePlugin: "DLCRobot.esm", FormType: "TESObjectREFR", Description: "ProtectronRef", Count: 2},
		},
		FormIDWarnings: []string{"form id 0001CBED is a known-bad record"},
		Records:        []crash.RecordMatch{{Text: `(TESNPC*) "Dogmeat.esm"`, Count: 1}},
		SettingsIssues: []crash.SettingsIssue{
			{Setting: "Achievements", Severity: 5, Warning: "redundant with the installed mod", Fix: "Change Achievements to FALSE."},
		},
		ModConflicts: []crash.ModConflict{
			{
				ModName:  "looks menu",
				Warning:  "An updated build resolves this.",
				Solution: "https://example.invalid/lmcc",
				Severity: crash.ConflictInfo,
				Type:     crash.ConflictHasSolution,
			},
		},
	}

	out := string(report.Render(result))

	assert.Contains(t, out, "# Crash Log Analysis: crash-2024-05-26.log")
	assert.Contains(t, out, "- Game: Fallout 4 v1.10.163")
	assert.Contains(t, out, "EXCEPTION_ACCESS_VIOLATION")
	assert.Contains(t, out, "### DLL Crash (severity 5, confidence 70%)")
	assert.Contains(t, out, "- Fix: Check the DLL's mod page for an update.")
	assert.Contains(t, out, "- **[INFO]** looks menu: An updated build resolves this.")
	assert.Contains(t, out, "  - Solution: https://example.invalid/lmcc")
	assert.Contains(t, out, "- **Achievements**: redundant with the installed mod")
	assert.Contains(t, out, "6 plugins loaded (4 masters, 1 light, 1 regular).")
	assert.Contains(t, out, "- homemaker.esm: 2")
	assert.Contains(t, out, "- `01008196` from DLCRobot.esm (TESObjectREFR): ProtectronRef (x2)")
	assert.Contains(t, out, "- **Warning:** form id 0001CBED is a known-bad record")
	assert.Contains(t, out, "- `(TESNPC*) \"Dogmeat.esm\"` (x1)")
	assert.NotContains(t, out, "Scan Warnings")
}

func TestRender_IncompleteLog(t *testing.T) {
	out := string(report.Render(&crashlens.ScanResult{
		LogName:    "crash-partial.log",
		Incomplete: true,
	}))

	assert.Contains(t, out, "no plugin list")
	assert.Contains(t, out, "No known crash signatures matched.")
}
