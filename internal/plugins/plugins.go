// Package plugins parses and analyzes the plugin-list segment of a crash
// log and matches plugin names against the call stack.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// pluginPattern matches one plugin-list entry: a bracketed load-order index
// (two hex digits, or the FE:XXX light-plugin form), a file name with a
// plugin extension, and optional bracketed flag text.
var pluginPattern = regexp.MustCompile(`(?i)^\[(FE:[0-9A-F]{3}|[0-9A-F]{2})\]\s*(.+?\.es[pml])(?:\s*\[(.+)\])?$`)

// lightIndexPrefix marks entries in the light-plugin index space.
const lightIndexPrefix = "FE:"

// cancelCheckInterval bounds cancellation latency on large segments.
const cancelCheckInterval = 128

// Analyzer parses the plugin segment and validates ordering and limits.
type Analyzer struct {
	// HardLimit is the plugin count treated as exceeding the game's budget.
	HardLimit int

	// RecommendedLimit is the count above which a warning is produced.
	RecommendedLimit int

	// Ignore lists plugin names (lowercase) excluded from call-stack
	// matching.
	Ignore []string

	// Log receives recoverable parse conditions. Nil disables logging.
	Log *slog.Logger
}

// Result is the structured outcome of analyzing the plugin segment.
type Result struct {
	Plugins []crash.Plugin
	Counts  crash.PluginCounts

	// LimitTriggered is set when any entry carries the 0xFF sentinel index.
	LimitTriggered bool

	// Issues lists ordering and threshold problems in detection order.
	Issues []string
}

// Analyze parses each line of the plugin segment. Lines that do not match
// the expected entry shape are skipped, never fatal.
func (a *Analyzer) Analyze(ctx context.Context, segment []string) (Result, error) {
	var res Result
	seen := make(map[string]struct{}, len(segment))

	masterMax := -1
	var masterMaxName string
	regularMin := 256
	var regularMinName string

	for i, line := range segment {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}

		m := pluginPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		p, ok := a.parseEntry(m[1], m[2], m[3])
		if !ok {
			continue
		}
		if _, dup := seen[strings.ToLower(p.FileName)]; dup {
			continue
		}
		seen[strings.ToLower(p.FileName)] = struct{}{}

		if p.LoadOrder == crash.PluginLimitOrder && !p.IsLight {
			res.LimitTriggered = true
		}

		// Light plugins live in their own index space and are excluded
		// from the master-ordering check.
		if !p.IsLight && p.LoadOrder != crash.PluginLimitOrder {
			order := int(p.LoadOrder)
			if p.IsMaster {
				if order > masterMax {
					masterMax = order
					masterMaxName = p.FileName
				}
			} else if order < regularMin {
				regularMin = order
				regularMinName = p.FileName
			}
		}

		res.Plugins = append(res.Plugins, p)
	}

	res.Counts = countPlugins(res.Plugins)

	if masterMax > regularMin {
		res.Issues = append(res.Issues, fmt.Sprintf(
			"masters must load before plugins: %s (master, index %02X) loads after %s (index %02X)",
			masterMaxName, masterMax, regularMinName, regularMin))
	}
	if a.HardLimit > 0 && res.Counts.Total > a.HardLimit {
		res.Issues = append(res.Issues, fmt.Sprintf(
			"plugin count %d exceeds the game limit of %d", res.Counts.Total, a.HardLimit))
	} else if a.RecommendedLimit > 0 && res.Counts.Total > a.RecommendedLimit {
		res.Issues = append(res.Issues, fmt.Sprintf(
			"plugin count %d exceeds the recommended maximum of %d", res.Counts.Total, a.RecommendedLimit))
	}

	return res, nil
}

// parseEntry decodes one matched entry into a Plugin.
func (a *Analyzer) parseEntry(index, name, flags string) (crash.Plugin, bool) {
	p := crash.Plugin{
		FileName: strings.TrimSpace(name),
		Flags:    strings.TrimSpace(flags),
	}

	if strings.HasPrefix(strings.ToUpper(index), lightIndexPrefix) {
		// The FE index space holds light plugins; the byte index of the
		// owning slot is FE regardless of the three-digit sub-index.
		p.LoadOrder = 0xFE
		p.IsLight = true
	} else {
		order, err := strconv.ParseUint(index, 16, 8)
		if err != nil {
			if a.Log != nil {
				a.Log.Debug("unparseable plugin index", "index", index, "plugin", p.FileName)
			}
			return crash.Plugin{}, false
		}
		p.LoadOrder = uint8(order)
	}

	lower := strings.ToLower(p.FileName)
	switch {
	case strings.HasSuffix(lower, ".esm"):
		p.IsMaster = true
		p.Status = crash.PluginMaster
	case strings.HasSuffix(lower, ".esl"),
		strings.Contains(strings.ToLower(p.Flags), "light"),
		p.IsLight:
		p.IsLight = true
		p.Status = crash.PluginLight
	case strings.HasSuffix(lower, ".esp"):
		p.Status = crash.PluginRegular
	default:
		p.Status = crash.PluginUnknown
	}

	return p, true
}

func countPlugins(list []crash.Plugin) crash.PluginCounts {
	c := crash.PluginCounts{Total: len(list)}
	for _, p := range list {
		switch p.Status {
		case crash.PluginMaster:
			c.Masters++
		case crash.PluginLight:
			c.Light++
		case crash.PluginRegular:
			c.Regular++
		default:
			c.Unknown++
		}
	}
	return c
}

// MatchCallStack counts, per installed name, the call-stack lines that
// mention it (case-insensitive). Lines annotated "modified by:" are skipped,
// as are names on the analyzer's ignore list. Results are ordered by count
// descending, then name ascending.
func (a *Analyzer) MatchCallStack(ctx context.Context, callstack []string, names []string) ([]crash.PluginMatch, error) {
	ignore := make(map[string]struct{}, len(a.Ignore))
	for _, n := range a.Ignore {
		ignore[strings.ToLower(n)] = struct{}{}
	}

	lowered := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(n)
		if _, skip := ignore[n]; !skip {
			lowered = append(lowered, n)
		}
	}

	counts := make(map[string]int)
	for i, line := range callstack {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lowerLine := strings.ToLower(line)
		if strings.Contains(lowerLine, "modified by:") {
			continue
		}
		for _, name := range lowered {
			if strings.Contains(lowerLine, name) {
				counts[name]++
			}
		}
	}

	matches := make([]crash.PluginMatch, 0, len(counts))
	for name, count := range counts {
		matches = append(matches, crash.PluginMatch{Name: name, Count: count})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Count != matches[j].Count {
			return matches[i].Count > matches[j].Count
		}
		return matches[i].Name < matches[j].Name
	})
	return matches, nil
}

// modulePattern strips trailing version text from a module entry
// ("foo.dll v1.2.3" becomes "foo.dll").
var modulePattern = regexp.MustCompile(`(?i)^(.*?\.dll)\s*v?.*$`)

// ExtractModuleNames returns the lowercased DLL names from a script-extender
// plugin segment, deduplicated and sorted.
func ExtractModuleNames(lines []string) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if m := modulePattern.FindStringSubmatch(text); m != nil {
			text = m[1]
		}
		set[strings.ToLower(text)] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// JoinModules appends script-extender module names to a plugin list as
// DLL-status entries. Names already present in the list (case-insensitive)
// are skipped. The input slice is not modified.
func JoinModules(list []crash.Plugin, modules []string) []crash.Plugin {
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		seen[strings.ToLower(p.FileName)] = struct{}{}
	}

	joined := append([]crash.Plugin(nil), list...)
	for _, name := range modules {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		joined = append(joined, crash.Plugin{FileName: name, Status: crash.PluginDLL})
	}
	return joined
}
