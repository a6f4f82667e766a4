// Package crash defines the structured data extracted from a crash-report
// log: the segmented log itself and the analysis results produced from it.
package crash

// Segment keys used in Log.Segments. Keys are case-sensitive.
const (
	// SegmentHeader holds the lines before the first recognized section.
	SegmentHeader = "header"
	// SegmentSettings holds the crash generator's embedded key = value dump.
	SegmentSettings = "settings"
	// SegmentSystem holds the system-specs section.
	SegmentSystem = "system"
	// SegmentCallStack holds the probable call stack. Both "CALL STACK" and
	// "STACK" section headers resolve to this key.
	SegmentCallStack = "callstack"
	// SegmentModules holds the loaded-modules section.
	SegmentModules = "modules"
	// SegmentXSEModules holds the script-extender plugin DLL section.
	SegmentXSEModules = "xsemodules"
	// SegmentPlugins holds the game plugin list.
	SegmentPlugins = "plugins"
)

// Log is one segmented crash log. It is immutable once constructed;
// analyzers only read from it, so a single Log may be scanned concurrently.
type Log struct {
	// FileName is the base name of the source file.
	FileName string

	// RawContent is the full log, one entry per line, in original order.
	RawContent []string

	// Segments maps a segment key to the lines of that section, in order.
	// A section missing from the log has no entry (or an empty slice);
	// neither is an error.
	Segments map[string][]string

	// MainError is the reported main error line, empty if none was found.
	MainError string

	// GameVersion and CrashGenVersion are taken from the header block when
	// recognizable, empty otherwise.
	GameVersion     string
	CrashGenVersion string
}

// Segment returns the lines of the named segment, or nil if absent.
func (l *Log) Segment(key string) []string {
	if l == nil || l.Segments == nil {
		return nil
	}
	return l.Segments[key]
}

// HasSegment reports whether the named segment is present and non-empty.
func (l *Log) HasSegment(key string) bool {
	return len(l.Segment(key)) > 0
}
