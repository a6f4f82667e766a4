// Package settings parses the crash generator's embedded configuration
// block and flags combinations known to conflict with installed
// script-extender modules.
package settings

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// Block is the parsed key = value dump. Keys are matched
// case-insensitively; the original casing is kept for messages.
type Block struct {
	values map[string]any    // lowercased key -> value
	names  map[string]string // lowercased key -> original casing
}

// ParseBlock parses the embedded settings segment. The block is TOML-shaped
// but crash generators are sloppy about quoting, so a strict parse of the
// whole block is attempted first and a tolerant line-by-line parse covers
// the rest.
func ParseBlock(lines []string) *Block {
	b := &Block{
		values: make(map[string]any),
		names:  make(map[string]string),
	}

	var strict map[string]any
	if err := toml.Unmarshal([]byte(strings.Join(lines, "\n")), &strict); err == nil {
		flatten(strict, b)
		return b
	}

	for _, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "#") {
			continue
		}
		// Crash generators emit either "Key = value" (config dumps) or
		// "Key: value" (log sections).
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			key, value, ok = strings.Cut(text, ":")
		}
		if !ok {
			continue
		}
		b.set(strings.TrimSpace(key), parseValue(strings.TrimSpace(value)))
	}
	return b
}

// flatten folds TOML section tables into a single-level map; section names
// are dropped since the crash generators keep setting names globally unique.
func flatten(m map[string]any, b *Block) {
	for key, value := range m {
		if nested, ok := value.(map[string]any); ok {
			flatten(nested, b)
			continue
		}
		b.set(key, value)
	}
}

func (b *Block) set(key string, value any) {
	lower := strings.ToLower(key)
	b.values[lower] = value
	b.names[lower] = key
}

// parseValue interprets booleans and integers, stripping optional quotes
// from anything else.
func parseValue(text string) any {
	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	return strings.Trim(text, `"'`)
}

// Len reports the number of parsed settings.
func (b *Block) Len() int {
	if b == nil {
		return 0
	}
	return len(b.values)
}

// Bool returns the named boolean setting. Integer settings count as
// booleans the way the crash generator treats them (non-zero is true).
func (b *Block) Bool(name string) (value, present bool) {
	if b == nil {
		return false, false
	}
	v, ok := b.values[strings.ToLower(name)]
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	default:
		return false, false
	}
}

// Issue severities. Settings issues use the suspect-rule scale (1-6);
// the scanner never escalates past 5.
const (
	severityNotice  = 1
	severityAdvice  = 4
	severityCaution = 5
)

// Module file names whose presence changes which settings are safe.
const (
	moduleAchievements = "achievements.dll"
	moduleSurvival     = "unlimitedsurvivalmode.dll"
	moduleBakaHeap     = "bakascrapheap.dll"
	moduleLooksMenu    = "f4ee.dll"
	moduleXCellMarker  = "x-cell"
)

// xcellAllocatorFlags are allocator takeovers that must stay disabled when
// the X-Cell memory mod is installed.
var xcellAllocatorFlags = []string{
	"HavokMemorySystem",
	"BSTextureStreamerLocalHeap",
	"ScaleformAllocator",
	"SmallBlockAllocator",
}

// Scanner cross-checks known-problematic setting/module combinations.
type Scanner struct {
	// CrashGenName names the crash generator in fix instructions.
	CrashGenName string

	// Ignore lists boolean settings allowed to be false without a notice.
	Ignore []string
}

// Scan evaluates the parsed block against the installed script-extender
// module set (lowercased DLL names).
func (s *Scanner) Scan(block *Block, xseModules []string) []crash.SettingsIssue {
	if block.Len() == 0 {
		return nil
	}

	gen := s.CrashGenName
	if gen == "" {
		gen = "the crash generator"
	}

	modules := make(map[string]struct{}, len(xseModules))
	hasXCell := false
	for _, m := range xseModules {
		m = strings.ToLower(m)
		modules[m] = struct{}{}
		if strings.Contains(m, moduleXCellMarker) {
			hasXCell = true
		}
	}
	has := func(name string) bool {
		_, ok := modules[name]
		return ok
	}
	hasBaka := has(moduleBakaHeap)

	var issues []crash.SettingsIssue
	checked := map[string]struct{}{}
	add := func(setting string, severity int, warning, fix string) {
		checked[strings.ToLower(setting)] = struct{}{}
		issues = append(issues, crash.SettingsIssue{
			Setting:  setting,
			Severity: severity,
			Warning:  warning,
			Fix:      fix,
		})
	}
	mark := func(setting string) { checked[strings.ToLower(setting)] = struct{}{} }

	// Memory management: the replacement allocator mods and the crash
	// generator's own manager must not run at the same time.
	memEnabled, _ := block.Bool("MemoryManager")
	switch {
	case memEnabled && hasXCell:
		add("MemoryManager", severityCaution,
			"X-Cell is installed, but MemoryManager is set to TRUE",
			"Change MemoryManager to FALSE in "+gen+"'s settings to prevent conflicts with X-Cell.")
	case memEnabled && hasBaka:
		add("MemoryManager", severityAdvice,
			"The Baka ScrapHeap mod is installed, but is redundant with "+gen,
			"Uninstall Baka ScrapHeap to prevent conflicts with "+gen+".")
	case !memEnabled && hasXCell && hasBaka:
		add("MemoryManager", severityAdvice,
			"The Baka ScrapHeap mod is installed, but is redundant with X-Cell",
			"Uninstall Baka ScrapHeap to prevent conflicts with X-Cell.")
	case !memEnabled && hasBaka:
		add("MemoryManager", severityAdvice,
			"The Baka ScrapHeap mod is installed, but is redundant with "+gen,
			"Uninstall Baka ScrapHeap and change MemoryManager to TRUE in "+gen+"'s settings.")
	default:
		mark("MemoryManager")
	}

	if hasXCell {
		for _, flag := range xcellAllocatorFlags {
			if on, _ := block.Bool(flag); on {
				add(flag, severityCaution,
					"X-Cell is installed, but "+flag+" is set to TRUE",
					"Change "+flag+" to FALSE in "+gen+"'s settings to prevent conflicts with X-Cell.")
			} else {
				mark(flag)
			}
		}
	}

	if on, _ := block.Bool("Achievements"); on && (has(moduleAchievements) || has(moduleSurvival)) {
		add("Achievements", severityCaution,
			"An achievements-unlocking mod is installed, but Achievements is set to TRUE",
			"Change Achievements to FALSE in "+gen+"'s settings; the mod already provides this.")
	} else {
		mark("Achievements")
	}

	if on, _ := block.Bool("ArchiveLimit"); on {
		add("ArchiveLimit", severityCaution,
			"ArchiveLimit is set to TRUE, this setting is known to cause instability",
			"Change ArchiveLimit to FALSE in "+gen+"'s settings.")
	} else {
		mark("ArchiveLimit")
	}

	if on, present := block.Bool("F4EE"); present && !on && has(moduleLooksMenu) {
		add("F4EE", severityCaution,
			"Looks Menu is installed, but the F4EE compatibility setting is FALSE",
			"Change F4EE to TRUE in "+gen+"'s settings to prevent Looks Menu bugs and crashes.")
	} else {
		mark("F4EE")
	}

	// Any other disabled boolean might be deliberate, but is worth a note.
	ignore := make(map[string]struct{}, len(s.Ignore))
	for _, name := range s.Ignore {
		ignore[strings.ToLower(name)] = struct{}{}
	}
	for _, lower := range sortedKeys(block.values) {
		value, isBool := block.values[lower].(bool)
		if !isBool || value {
			continue
		}
		if _, done := checked[lower]; done {
			continue
		}
		if _, skip := ignore[lower]; skip {
			continue
		}
		name := block.names[lower]
		issues = append(issues, crash.SettingsIssue{
			Setting:  name,
			Severity: severityNotice,
			Warning:  name + " is disabled in " + gen + "'s settings, is this intentional?",
		})
	}

	return issues
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
