// Package segment splits raw crash-log lines into named sections.
package segment

import (
	"context"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// mainErrorPrefix marks the reported main error line.
const mainErrorPrefix = "Main Error:"

// legacyMainErrorPrefix is the unprefixed form older crash generators emit.
const legacyMainErrorPrefix = "Unhandled exception"

// cancelCheckInterval is how many lines are processed between context
// checks, bounding cancellation latency on very large logs.
const cancelCheckInterval = 256

// Segmenter splits a crash log into segments. The zero value is usable;
// GameRootName and CrashGenName improve version detection in the header
// block when set.
type Segmenter struct {
	// GameRootName is the prefix of the game-version header line
	// (e.g. "Fallout 4").
	GameRootName string

	// CrashGenName is the prefix of the crash-generator version line
	// (e.g. "Buffout 4").
	CrashGenName string
}

// Parse segments the given lines into a crash.Log. Missing sections simply
// produce no entry; malformed content is never an error. The only error
// returned is ctx.Err when the context is cancelled mid-parse.
func (s Segmenter) Parse(ctx context.Context, fileName string, lines []string) (*crash.Log, error) {
	log := &crash.Log{
		FileName:   fileName,
		RawContent: lines,
		Segments:   make(map[string][]string),
	}

	current := crash.SegmentHeader
	headerLinesSeen := 0

	for i, raw := range lines {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if isDelimiterOnly(trimmed) {
			continue
		}

		if key, ok := classifyHeader(trimmed); ok {
			current = key
			continue
		}

		if rest, ok := strings.CutPrefix(trimmed, mainErrorPrefix); ok {
			log.MainError = strings.TrimSpace(rest)
			continue
		}
		if strings.HasPrefix(trimmed, legacyMainErrorPrefix) {
			// Older generators put the address after a pipe; fold it onto a
			// second line the way downstream matching expects.
			log.MainError = strings.Replace(trimmed, "|", "\n", 1)
			continue
		}

		if current == crash.SegmentHeader {
			if trimmed == "" {
				continue
			}
			// The settings segment starts at its first bracketed section
			// header even without a preceding delimiter.
			if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
				current = crash.SegmentSettings
			} else {
				s.noteHeaderLine(log, trimmed, &headerLinesSeen)
				continue
			}
		}

		log.Segments[current] = append(log.Segments[current], trimmed)
	}

	return log, nil
}

// noteHeaderLine extracts version strings from the header block.
func (s Segmenter) noteHeaderLine(log *crash.Log, line string, seen *int) {
	switch {
	case s.CrashGenName != "" && strings.HasPrefix(line, s.CrashGenName):
		log.CrashGenVersion = line
	case s.GameRootName != "" && strings.HasPrefix(line, s.GameRootName):
		log.GameVersion = line
	case s.CrashGenName == "" && *seen == 0:
		log.CrashGenVersion = line
	case s.GameRootName == "" && *seen == 1:
		log.GameVersion = line
	}
	*seen++
}

// isDelimiterOnly reports whether the line is a bare "====" divider with no
// header text.
func isDelimiterOnly(line string) bool {
	if !strings.HasPrefix(line, "====") {
		return false
	}
	return strings.Trim(line, "= \t") == ""
}

// classifyHeader maps a section header line to its segment key. Headers may
// be wrapped in "====" decorations ("==== PLUGINS ====") or appear bare
// ("PLUGINS:"). To avoid misclassifying content lines, bare text must match
// a known header name exactly once decorations and the trailing colon are
// stripped.
func classifyHeader(line string) (string, bool) {
	text := strings.Trim(line, "= \t")
	if text == "" || len(text) > 48 {
		return "", false
	}
	text = strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(text), ":"))

	switch text {
	case "SYSTEM SPECS":
		return crash.SegmentSystem, true
	case "PROBABLE CALL STACK", "CALL STACK", "STACK":
		return crash.SegmentCallStack, true
	case "MODULES":
		return crash.SegmentModules, true
	case "PLUGINS":
		return crash.SegmentPlugins, true
	case "SETTINGS", "COMPATIBILITY":
		return crash.SegmentSettings, true
	}

	// Script-extender plugin sections are named after the game's extender
	// acronym: "F4SE PLUGINS", "SKSE PLUGINS", "XSE PLUGINS".
	if rest, ok := strings.CutSuffix(text, " PLUGINS"); ok && strings.HasSuffix(rest, "SE") {
		return crash.SegmentXSEModules, true
	}

	return "", false
}
