// Package suspect evaluates crash-signature rules against a segmented
// crash log and produces ranked suspects.
//
// Two table-driven passes run over every log. The basic pass checks each
// error rule's single signal against the main error line. The advanced pass
// evaluates ordered signal lists with the following grammar:
//
//	"text"        substring match against the call-stack/modules/system text
//	"3|text"      match only if text occurs at least 3 times in the call stack
//	"ME-REQ|text" required main-error condition; gates the whole rule
//	"ME-OPT|text" optional main-error condition
//	"NOT|text"    abandon the rule if text occurs in the call stack
//
// All matching is case-insensitive. A rule with any ME-REQ signal matches
// iff its required condition matched; otherwise it matches when an optional
// main-error signal or any stack signal did.
package suspect

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
	"github.com/crashlens/crashlens-go/pkg/crashlens/rules"
)

// Confidence weights. Both passes share the base-plus-bonuses shape capped
// at 1.0; the basic pass has only the main-error bonus to give.
const (
	basicBase       = 0.5
	basicErrorBonus = 0.4

	advancedBase       = 0.4
	advancedErrorBonus = 0.2
	advancedStackBonus = 0.2
	advancedRatioBonus = 0.2
)

// Engine evaluates the externally supplied suspect rules.
type Engine struct {
	// ErrorRules maps "<severity> | <name>" keys to a single main-error
	// substring (the basic pass).
	ErrorRules map[string]string

	// StackRules maps rule keys to ordered signal lists (the advanced pass).
	StackRules map[string][]string

	// Log receives skipped-rule conditions. Nil disables logging.
	Log *slog.Logger
}

// Scan runs both passes. Invalid rule keys are skipped and logged; they
// never abort the scan. Output order is deterministic (sorted rule keys).
func (e *Engine) Scan(ctx context.Context, log *crash.Log) ([]crash.Suspect, error) {
	mainError := strings.ToLower(log.MainError)
	stackText := strings.ToLower(strings.Join(log.Segment(crash.SegmentCallStack), "\n"))
	broadText := stackText + "\n" +
		strings.ToLower(strings.Join(log.Segment(crash.SegmentModules), "\n")) + "\n" +
		strings.ToLower(strings.Join(log.Segment(crash.SegmentSystem), "\n"))

	var suspects []crash.Suspect

	for _, key := range sortedRuleKeys(e.ErrorRules) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		severity, name, err := rules.ParseRuleKey(key)
		if err != nil {
			e.skip(key, err)
			continue
		}
		signal := e.ErrorRules[key]
		if !strings.Contains(mainError, strings.ToLower(signal)) {
			continue
		}
		suspects = append(suspects, crash.Suspect{
			Name:            name,
			Description:     "Main error matches a known crash signature.",
			Severity:        severity,
			Confidence:      capConfidence(basicBase + basicErrorBonus),
			MatchedPatterns: []string{signal},
		})
	}

	for _, key := range sortedRuleKeys(e.StackRules) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		severity, name, err := rules.ParseRuleKey(key)
		if err != nil {
			e.skip(key, err)
			continue
		}
		if s, ok := evalStackRule(name, severity, e.StackRules[key], mainError, stackText, broadText); ok {
			suspects = append(suspects, s)
		}
	}

	return suspects, nil
}

func (e *Engine) skip(key string, err error) {
	if e.Log != nil {
		e.Log.Warn("skipping malformed suspect rule", "key", key, "error", err)
	}
}

// matchState accumulates signal outcomes for one advanced rule.
type matchState struct {
	hasRequiredItem bool
	errorReqFound   bool
	errorOptFound   bool
	stackFound      bool
}

// matched implements the rule decision: an ME-REQ signal gates the rule on
// the main error alone, overriding all optional and stack evidence.
func (m matchState) matched() bool {
	if m.hasRequiredItem {
		return m.errorReqFound
	}
	return m.errorOptFound || m.stackFound
}

// evalStackRule processes one rule's signals in order. A NOT hit abandons
// the rule immediately regardless of signals already matched.
func evalStackRule(name string, severity int, signals []string, mainError, stackText, broadText string) (crash.Suspect, bool) {
	var state matchState
	var matchedPatterns []string
	matchedCount := 0

	for _, signal := range signals {
		modifier, text, hasModifier := strings.Cut(signal, "|")
		if !hasModifier {
			if strings.Contains(broadText, strings.ToLower(signal)) {
				state.stackFound = true
				matchedPatterns = append(matchedPatterns, signal)
				matchedCount++
			}
			continue
		}

		lowerText := strings.ToLower(text)
		switch modifier {
		case rules.SignalMainErrorRequired:
			state.hasRequiredItem = true
			if strings.Contains(mainError, lowerText) {
				state.errorReqFound = true
				matchedPatterns = append(matchedPatterns, signal)
				matchedCount++
			}
		case rules.SignalMainErrorOptional:
			if strings.Contains(mainError, lowerText) {
				state.errorOptFound = true
				matchedPatterns = append(matchedPatterns, signal)
				matchedCount++
			}
		case rules.SignalNegative:
			if strings.Contains(stackText, lowerText) {
				return crash.Suspect{}, false
			}
		default:
			minCount, err := strconv.Atoi(modifier)
			if err != nil {
				// Unknown modifier: treat the whole signal as plain text,
				// matching how unrecognized prefixes read in the tables.
				if strings.Contains(broadText, strings.ToLower(signal)) {
					state.stackFound = true
					matchedPatterns = append(matchedPatterns, signal)
					matchedCount++
				}
				continue
			}
			if strings.Count(stackText, lowerText) >= minCount {
				state.stackFound = true
				matchedPatterns = append(matchedPatterns, signal)
				matchedCount++
			}
		}
	}

	if !state.matched() {
		return crash.Suspect{}, false
	}

	confidence := advancedBase
	if state.errorReqFound || state.errorOptFound {
		confidence += advancedErrorBonus
	}
	if state.stackFound {
		confidence += advancedStackBonus
	}
	confidence += advancedRatioBonus * float64(matchedCount) / float64(len(signals))

	return crash.Suspect{
		Name:            name,
		Description:     "Call-stack and main-error signals match a known crash signature.",
		Severity:        severity,
		Confidence:      capConfidence(confidence),
		MatchedPatterns: matchedPatterns,
	}, true
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}

func sortedRuleKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dedupe collapses suspects sharing a name, keeping the highest severity
// (highest confidence as tiebreak). Input order is preserved for the
// surviving entries.
func Dedupe(suspects []crash.Suspect) []crash.Suspect {
	byName := make(map[string]int, len(suspects))
	out := suspects[:0:0]

	for _, s := range suspects {
		i, seen := byName[s.Name]
		if !seen {
			byName[s.Name] = len(out)
			out = append(out, s)
			continue
		}
		if s.Severity > out[i].Severity ||
			(s.Severity == out[i].Severity && s.Confidence > out[i].Confidence) {
			out[i] = s
		}
	}
	return out
}

// Sort orders suspects by severity descending, confidence descending, then
// name ascending so repeated scans emit identical orderings.
func Sort(suspects []crash.Suspect) {
	sort.SliceStable(suspects, func(i, j int) bool {
		if suspects[i].Severity != suspects[j].Severity {
			return suspects[i].Severity > suspects[j].Severity
		}
		if suspects[i].Confidence != suspects[j].Confidence {
			return suspects[i].Confidence > suspects[j].Confidence
		}
		return suspects[i].Name < suspects[j].Name
	})
}
