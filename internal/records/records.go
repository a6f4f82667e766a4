// Package records extracts named-record references from the call stack.
package records

import (
	"context"
	"sort"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// rspMarker identifies register-dump formatted lines; the record text on
// those lines starts after a fixed-width prefix.
const (
	rspMarker = "[RSP+"
	rspOffset = 30
)

// cancelCheckInterval bounds cancellation latency on large segments.
const cancelCheckInterval = 128

// Scanner finds call-stack lines naming game records. Detect and Ignore are
// substring lists checked case-insensitively; a line counts when it contains
// any detect substring and no ignore substring.
type Scanner struct {
	detect []string
	ignore []string
}

// NewScanner lowercases the configured substring lists once up front.
func NewScanner(detect, ignore []string) *Scanner {
	s := &Scanner{
		detect: make([]string, 0, len(detect)),
		ignore: make([]string, 0, len(ignore)),
	}
	for _, d := range detect {
		s.detect = append(s.detect, strings.ToLower(d))
	}
	for _, g := range ignore {
		s.ignore = append(s.ignore, strings.ToLower(g))
	}
	return s
}

// Scan aggregates matching lines into case-sensitive counts, ordered
// alphabetically by record text.
func (s *Scanner) Scan(ctx context.Context, callstack []string) ([]crash.RecordMatch, error) {
	if len(s.detect) == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	for i, line := range callstack {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if text, ok := s.match(line); ok {
			counts[text]++
		}
	}

	matches := make([]crash.RecordMatch, 0, len(counts))
	for text, count := range counts {
		matches = append(matches, crash.RecordMatch{Text: text, Count: count})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Text < matches[j].Text })
	return matches, nil
}

// match reports the trimmed record text for a qualifying line.
func (s *Scanner) match(line string) (string, bool) {
	lower := strings.ToLower(line)

	found := false
	for _, d := range s.detect {
		if strings.Contains(lower, d) {
			found = true
			break
		}
	}
	if !found {
		return "", false
	}
	for _, g := range s.ignore {
		if strings.Contains(lower, g) {
			return "", false
		}
	}

	if strings.Contains(line, rspMarker) {
		if len(line) <= rspOffset {
			return "", false
		}
		text := strings.TrimSpace(line[rspOffset:])
		return text, text != ""
	}
	return strings.TrimSpace(line), true
}
