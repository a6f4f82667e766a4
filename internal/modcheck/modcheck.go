// Package modcheck cross-references the installed plugin list against the
// externally supplied compatibility tables.
package modcheck

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
	"github.com/crashlens/crashlens-go/pkg/crashlens/rules"
)

// negationPrefix negates a GPU constraint ("!amd" means every vendor except
// AMD).
const negationPrefix = "!"

// solutionLinkMarker introduces an embedded link inside a solution
// description.
const solutionLinkMarker = "Link:"

const cancelCheckInterval = 128

// Detector evaluates the four compatibility tables plus the plugin-limit
// sentinel against one crash log's plugin list.
type Detector struct {
	Tables rules.Mods
	Log    *slog.Logger
}

// Detect returns all findings for the given plugin list. Findings are
// ordered by detection pass, then by table key within a pass, so output is
// deterministic regardless of map iteration order.
func (d *Detector) Detect(ctx context.Context, plugins []crash.Plugin, gpu crash.GPUInfo, limitTriggered bool) ([]crash.ModConflict, error) {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, strings.ToLower(p.FileName))
	}

	var conflicts []crash.ModConflict
	var checked int

	check := func() error {
		checked++
		if checked%cancelCheckInterval == 0 {
			return ctx.Err()
		}
		return nil
	}

	// Pass 1: mods that crash frequently. The first matching table entry
	// wins per plugin so a plugin never appears twice here.
	frequentKeys := sortedKeys(d.Tables.Frequent)
	for i, p := range plugins {
		if err := check(); err != nil {
			return nil, err
		}
		for _, key := range frequentKeys {
			if !strings.Contains(names[i], strings.ToLower(key)) {
				continue
			}
			conflicts = append(conflicts, crash.ModConflict{
				ModName:  p.FileName,
				PluginID: key,
				Warning:  d.Tables.Frequent[key].Description,
				Severity: crash.ConflictCritical,
				Type:     crash.ConflictFrequentCrash,
			})
			break
		}
	}

	// Pass 2: incompatible pairs, flagged only when both halves are
	// installed.
	for _, key := range sortedKeys(d.Tables.Conflicts) {
		if err := check(); err != nil {
			return nil, err
		}
		left, right, ok := rules.SplitPairKey(key)
		if !ok {
			continue
		}
		if installed(names, left) && installed(names, right) {
			conflicts = append(conflicts, crash.ModConflict{
				ModName:  left + " + " + right,
				PluginID: key,
				Warning:  d.Tables.Conflicts[key].Description,
				Severity: crash.ConflictCaution,
				Type:     crash.ConflictModPair,
			})
		}
	}

	// Pass 3: important mods that are missing. A GPU constraint that
	// clearly does not apply to the detected vendor suppresses the finding;
	// when the vendor is unknown the recommendation stands but is never
	// escalated to critical.
	for _, key := range sortedKeys(d.Tables.Important) {
		if err := check(); err != nil {
			return nil, err
		}
		modID, displayName, ok := rules.SplitPairKey(key)
		if !ok {
			modID, displayName = key, key
		}
		if installed(names, modID) {
			continue
		}
		entry := d.Tables.Important[key]
		if !constraintApplies(entry.GPUConstraint, gpu.Vendor) {
			continue
		}
		severity := crash.ConflictWarning
		if constraintConfirmed(entry.GPUConstraint, gpu.Vendor) {
			severity = crash.ConflictCritical
		}
		conflicts = append(conflicts, crash.ModConflict{
			ModName:     displayName,
			PluginID:    modID,
			Warning:     entry.Description,
			Severity:    severity,
			Type:        crash.ConflictMissingImportant,
			GPUSpecific: entry.GPUConstraint,
		})
	}

	// Pass 4: installed mods with a known fix.
	for _, key := range sortedKeys(d.Tables.Solutions) {
		if err := check(); err != nil {
			return nil, err
		}
		if !installed(names, key) {
			continue
		}
		warning, solution := splitSolution(d.Tables.Solutions[key].Description)
		conflicts = append(conflicts, crash.ModConflict{
			ModName:  key,
			PluginID: key,
			Warning:  warning,
			Solution: solution,
			Severity: crash.ConflictInfo,
			Type:     crash.ConflictHasSolution,
		})
	}

	if limitTriggered {
		conflicts = append(conflicts, crash.ModConflict{
			ModName:  "plugin load order",
			Warning:  "The load order contains the [FF] limit marker. The game cannot address plugins past the regular slot budget.",
			Severity: crash.ConflictCritical,
			Type:     crash.ConflictLoadOrderIssue,
		})
	}

	if d.Log != nil && len(conflicts) > 0 {
		d.Log.Debug("mod check complete", "findings", len(conflicts))
	}
	return conflicts, nil
}

// installed reports whether any plugin name contains the pattern.
func installed(names []string, pattern string) bool {
	pattern = strings.ToLower(pattern)
	for _, n := range names {
		if strings.Contains(n, pattern) {
			return true
		}
	}
	return false
}

// splitSolution separates a description from its embedded "Link:" line.
func splitSolution(description string) (warning, solution string) {
	idx := strings.Index(description, solutionLinkMarker)
	if idx < 0 {
		return description, ""
	}
	rest := description[idx+len(solutionLinkMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(description[:idx]), strings.TrimSpace(rest)
}

// constraintApplies reports whether an entry with the given GPU constraint
// is relevant for the detected vendor. Empty constraints always apply, and an
// unknown vendor never suppresses a finding.
func constraintApplies(constraint, vendor string) bool {
	if constraint == "" || vendor == "" {
		return true
	}
	if want, ok := strings.CutPrefix(constraint, negationPrefix); ok {
		return vendor != want
	}
	return vendor == constraint
}

// constraintConfirmed reports whether the constraint is known to match the
// detected vendor. Unlike constraintApplies, an unknown vendor is never a
// confirmation.
func constraintConfirmed(constraint, vendor string) bool {
	if constraint == "" || vendor == "" {
		return false
	}
	if want, ok := strings.CutPrefix(constraint, negationPrefix); ok {
		return vendor != want
	}
	return vendor == constraint
}

func sortedKeys(m map[string]rules.ModEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
