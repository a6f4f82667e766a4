package suspect

import (
	"regexp"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// Built-in check severities. These are fixed by the checks themselves and
// intentionally exceed the 1-6 rule scale at the top end.
const (
	severityHighPluginCount = 3
	severityNavmesh         = 4
	severityScript          = 4
	severityBA2Limit        = 5
	severityGraphics        = 5
	severityDLLCrash        = 5
	severityAccessViolation = 6
	severityPluginLimit     = 8
	severityNullPointer     = 9
)

// Plugin-count thresholds used when the caller passes none.
const (
	pluginHardLimit        = 255
	pluginRecommendedLimit = 200
)

// mainErrorAccessViolation is the exception name reported for bad memory
// accesses.
const mainErrorAccessViolation = "EXCEPTION_ACCESS_VIOLATION"

// benignAllocatorDLL appears in main errors during normal allocator
// operation and must not trigger the DLL-crash suspect.
const benignAllocatorDLL = "tbbmalloc"

// nullPointerPattern matches an all-zero address in the main error.
var nullPointerPattern = regexp.MustCompile(`0x0{8,16}\b`)

// Fixed pattern sets for the threshold-based built-in checks.
var (
	ba2LimitPatterns = []string{
		"LooseFileAsyncStream",
		"LooseFileStream",
		"BSResource::LooseFileLocation",
		"BSTextureStreamer::Manager",
	}
	navmeshPatterns = []string{
		"BSNavmesh",
		"PathingCell",
		"NavMeshObstacleManager",
	}
	scriptPatterns = []string{
		"BSScript",
		"Papyrus",
		"ScriptObject",
	}
	graphicsPatterns = []string{
		"d3d11.dll",
		"dxgi.dll",
		"BSGraphics",
		"CreateTexture2D",
		"DirectXTex",
	}
)

// Minimum pattern hits each check needs before it fires.
const (
	ba2LimitMinMatches = 2
	navmeshMinMatches  = 1
	scriptMinMatches   = 1
	graphicsMinMatches = 2
)

// BuiltinChecks runs the fixed-threshold checks that supplement the
// table-driven rules. pluginCount is the declared plugin-list length;
// thresholds of zero fall back to the game defaults.
func BuiltinChecks(log *crash.Log, pluginCount, hardLimit, recommendedLimit int) []crash.Suspect {
	if hardLimit <= 0 {
		hardLimit = pluginHardLimit
	}
	if recommendedLimit <= 0 {
		recommendedLimit = pluginRecommendedLimit
	}

	mainError := strings.ToLower(log.MainError)
	stackText := strings.ToLower(strings.Join(log.Segment(crash.SegmentCallStack), "\n"))

	var suspects []crash.Suspect

	if s, ok := patternSetCheck("BA2 Archive Limit Crash", severityBA2Limit, ba2LimitMinMatches,
		ba2LimitPatterns, stackText,
		"Loose-file streaming signatures indicate the BA2 archive limit was hit."); ok {
		suspects = append(suspects, s)
	}

	if strings.Contains(mainError, strings.ToLower(mainErrorAccessViolation)) {
		s := crash.Suspect{
			Name:            "Memory Access Violation",
			Description:     "The game attempted to access memory it does not own.",
			Severity:        severityAccessViolation,
			Confidence:      0.8,
			MatchedPatterns: []string{mainErrorAccessViolation},
		}
		if nullPointerPattern.MatchString(mainError) {
			s.Severity = severityNullPointer
			s.Description = "The game dereferenced a null pointer."
			s.MatchedPatterns = append(s.MatchedPatterns, "null pointer address")
		}
		suspects = append(suspects, s)
	}

	switch {
	case pluginCount > hardLimit:
		suspects = append(suspects, crash.Suspect{
			Name:            "Plugin Limit Exceeded",
			Description:     "More plugins are loaded than the game supports.",
			Severity:        severityPluginLimit,
			Confidence:      1.0,
			MatchedPatterns: []string{"plugin count"},
			Solutions:       []string{"Merge plugins or convert some to light plugins to get back under the limit."},
		})
	case pluginCount > recommendedLimit:
		suspects = append(suspects, crash.Suspect{
			Name:            "High Plugin Count",
			Description:     "The load order is close to the plugin limit.",
			Severity:        severityHighPluginCount,
			Confidence:      0.5,
			MatchedPatterns: []string{"plugin count"},
		})
	}

	if s, ok := patternSetCheck("Navmesh Crash", severityNavmesh, navmeshMinMatches,
		navmeshPatterns, stackText,
		"Pathfinding structures appear in the call stack."); ok {
		suspects = append(suspects, s)
	}
	if s, ok := patternSetCheck("Script Engine Crash", severityScript, scriptMinMatches,
		scriptPatterns, stackText,
		"The script virtual machine appears in the call stack."); ok {
		suspects = append(suspects, s)
	}
	if s, ok := patternSetCheck("Graphics Crash", severityGraphics, graphicsMinMatches,
		graphicsPatterns, stackText,
		"Rendering components dominate the call stack."); ok {
		suspects = append(suspects, s)
	}

	if strings.Contains(mainError, ".dll") && !strings.Contains(mainError, benignAllocatorDLL) {
		suspects = append(suspects, crash.Suspect{
			Name:            "DLL Crash",
			Description:     "The main error reports that a DLL file was involved in this crash. If it belongs to a mod, that mod is a prime suspect.",
			Severity:        severityDLLCrash,
			Confidence:      0.7,
			MatchedPatterns: []string{".dll"},
		})
	}

	return suspects
}

// patternSetCheck fires when at least minMatches of the fixed patterns
// occur in the haystack; confidence is the matched fraction.
func patternSetCheck(name string, severity, minMatches int, patterns []string, haystack, description string) (crash.Suspect, bool) {
	var matched []string
	for _, p := range patterns {
		if strings.Contains(haystack, strings.ToLower(p)) {
			matched = append(matched, p)
		}
	}
	if len(matched) < minMatches {
		return crash.Suspect{}, false
	}
	return crash.Suspect{
		Name:            name,
		Description:     description,
		Severity:        severity,
		Confidence:      float64(len(matched)) / float64(len(patterns)),
		MatchedPatterns: matched,
	}, true
}
