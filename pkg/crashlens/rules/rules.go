// Package rules defines the externally supplied rule and compatibility
// tables consumed by the crash-log analyzers. Tables are loaded once from a
// YAML file at the start of a scan session and are read-only afterwards.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// File represents the structure of a YAML rules file.
//
// Example:
//
//	version: 1
//	suspects:
//	  errors:
//	    "5 | Stack Overflow Crash": "EXCEPTION_STACK_OVERFLOW"
//	  stack:
//	    "6 | BA2 Texture Crash":
//	      - "ME-OPT|Texture"
//	      - "2|BSTextureStreamer"
//	      - "NOT|tbbmalloc"
//	mods:
//	  important:
//	    "canary | Papyrus Monitoring":
//	      description: "Detects save game corruption early."
//	      gpu_constraint: "!amd"
type File struct {
	// Version is the file format version. Currently only version 1 is
	// supported.
	Version int `yaml:"version"`

	Suspects Suspects `yaml:"suspects"`
	Mods     Mods     `yaml:"mods"`
	Records  Records  `yaml:"records"`
	Settings Settings `yaml:"settings"`
	FormIDs  FormIDs  `yaml:"formids"`
	Plugins  Plugins  `yaml:"plugins"`
}

// Suspects holds the table-driven crash-signature rules. Rule keys have the
// form "<severity> | <name>" where severity is an integer.
type Suspects struct {
	// Errors maps a rule key to a single substring checked against the
	// main error line only (the "basic" pass).
	Errors map[string]string `yaml:"errors"`

	// Stack maps a rule key to an ordered signal list evaluated against the
	// main error and the call stack (the "advanced" pass). See the signal
	// grammar in the package documentation for Engine.
	Stack map[string][]string `yaml:"stack"`
}

// Mods holds the compatibility tables, keyed by mod-name pattern.
type Mods struct {
	// Frequent maps mods known to crash frequently to a warning.
	Frequent map[string]ModEntry `yaml:"frequent"`

	// Conflicts maps "modA | modB" pairs to a warning shown when both
	// halves are installed.
	Conflicts map[string]ModEntry `yaml:"conflicts"`

	// Important maps "modId | displayName" keys to mods that should be
	// installed. Entries may carry a GPU constraint.
	Important map[string]ModEntry `yaml:"important"`

	// Solutions maps mods with a known fix to a description that may embed
	// a "Link:" marker.
	Solutions map[string]ModEntry `yaml:"solutions"`
}

// ModEntry is the value of one compatibility-table entry. In YAML it is
// either a plain string or an object with a description and an optional GPU
// constraint; the variant is decoded once at load time so downstream code
// never inspects dynamic types.
type ModEntry struct {
	Description   string `yaml:"description"`
	GPUConstraint string `yaml:"gpu_constraint"`
}

// UnmarshalYAML accepts both the plain-string and the object form.
func (e *ModEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*e = ModEntry{Description: s}
		return nil
	}

	// Decode into a shadow type to avoid recursing into this method.
	var raw struct {
		Description   string `yaml:"description"`
		GPUConstraint string `yaml:"gpu_constraint"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = ModEntry{
		Description:   raw.Description,
		GPUConstraint: strings.ToLower(strings.TrimSpace(raw.GPUConstraint)),
	}
	return nil
}

// Records configures the named-record scanner.
type Records struct {
	// Detect lists substrings identifying record lines in the call stack.
	Detect []string `yaml:"detect"`

	// Ignore lists substrings that disqualify a line even when a detect
	// substring is present.
	Ignore []string `yaml:"ignore"`
}

// Settings configures the settings scanner.
type Settings struct {
	// Ignore lists boolean settings that are allowed to be false without a
	// notice.
	Ignore []string `yaml:"ignore"`
}

// FormIDs configures FormID validation.
type FormIDs struct {
	// Blacklist lists known-bad FormID values (8 hex digits, 0x optional).
	Blacklist []string `yaml:"blacklist"`
}

// Plugins configures plugin-list validation.
type Plugins struct {
	// HardLimit is the plugin count above which the limit suspect is
	// critical. Defaults to 255 when zero.
	HardLimit int `yaml:"hard_limit"`

	// RecommendedLimit is the count above which an informational warning is
	// produced. Defaults to 200 when zero.
	RecommendedLimit int `yaml:"recommended_limit"`

	// Ignore lists plugin file names excluded from call-stack matching.
	Ignore []string `yaml:"ignore"`
}

// Rule key format: "<severity> | <name>".
const ruleKeySeparator = " | "

// ParseRuleKey splits a rule key into its severity and name parts.
func ParseRuleKey(key string) (severity int, name string, err error) {
	sevText, name, ok := strings.Cut(key, ruleKeySeparator)
	if !ok {
		return 0, "", fmt.Errorf("rule key %q: missing %q separator", key, ruleKeySeparator)
	}
	severity, err = strconv.Atoi(strings.TrimSpace(sevText))
	if err != nil {
		return 0, "", fmt.Errorf("rule key %q: severity is not an integer", key)
	}
	return severity, strings.TrimSpace(name), nil
}

// SplitPairKey splits a "left | right" table key, as used by the conflict
// and important-mod tables.
func SplitPairKey(key string) (left, right string, ok bool) {
	left, right, ok = strings.Cut(key, ruleKeySeparator)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(left), strings.TrimSpace(right), true
}
