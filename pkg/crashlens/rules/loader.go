package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// sanitizePathError removes the path from os.PathError so error messages
// don't expose file system paths to users.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

const (
	// MaxFileSize is the maximum allowed size for a rules file (1MB).
	MaxFileSize = 1 * 1024 * 1024

	// MaxSignalLength is the maximum length of a single signal string.
	MaxSignalLength = 512

	// MaxRuleCount is the maximum number of entries allowed per table.
	MaxRuleCount = 1000

	// SupportedVersion is the currently supported rules file version.
	SupportedVersion = 1
)

// DefaultPluginHardLimit and DefaultPluginRecommendedLimit are applied when
// the rules file leaves the thresholds unset.
const (
	DefaultPluginHardLimit        = 255
	DefaultPluginRecommendedLimit = 200
)

// Load reads and parses a rules file from the given path.
//
// The file is required to be a regular file and is read through a size
// limit, mirroring the pattern-file loading hardening elsewhere in this
// module: stat the descriptor rather than the path, reject special files,
// and never read more than MaxFileSize bytes.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", sanitizePathError(err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat rules file: %w", sanitizePathError(err))
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("rules file must be a regular file")
	}
	if info.Size() == 0 {
		return nil, errors.New("rules file is empty")
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("rules file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", sanitizePathError(err))
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("rules file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	return LoadBytes(data)
}

// LoadBytes parses a rules file from a byte slice.
func LoadBytes(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, errors.New("rules file is empty")
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("rules file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	var rf File
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := rf.Validate(); err != nil {
		return nil, err
	}
	rf.applyDefaults()

	return &rf, nil
}

// applyDefaults fills in unset thresholds.
func (f *File) applyDefaults() {
	if f.Plugins.HardLimit == 0 {
		f.Plugins.HardLimit = DefaultPluginHardLimit
	}
	if f.Plugins.RecommendedLimit == 0 {
		f.Plugins.RecommendedLimit = DefaultPluginRecommendedLimit
	}
}

// Validate performs schema-level validation: version, rule-key syntax,
// signal grammar prefixes, pair-key syntax, and table size limits. GPU
// constraints are deliberately not restricted to known vendor keywords; the
// detector decides how to treat unknown constraints per pass.
func (f *File) Validate() error {
	if f.Version != SupportedVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (only version %d is supported)", f.Version, SupportedVersion),
		}
	}

	if err := validateCount("suspects.errors", len(f.Suspects.Errors)); err != nil {
		return err
	}
	if err := validateCount("suspects.stack", len(f.Suspects.Stack)); err != nil {
		return err
	}

	for key, signal := range f.Suspects.Errors {
		if _, _, err := ParseRuleKey(key); err != nil {
			return &RuleError{Table: "suspects.errors", Key: key, Message: "invalid rule key", Cause: err}
		}
		if signal == "" {
			return &RuleError{Table: "suspects.errors", Key: key, Message: "signal is empty"}
		}
		if len(signal) > MaxSignalLength {
			return &RuleError{Table: "suspects.errors", Key: key, Message: signalTooLong(signal)}
		}
	}

	for key, signals := range f.Suspects.Stack {
		if _, _, err := ParseRuleKey(key); err != nil {
			return &RuleError{Table: "suspects.stack", Key: key, Message: "invalid rule key", Cause: err}
		}
		if len(signals) == 0 {
			return &RuleError{Table: "suspects.stack", Key: key, Message: "signal list is empty"}
		}
		for _, signal := range signals {
			if err := validateSignal(signal); err != nil {
				return &RuleError{Table: "suspects.stack", Key: key, Message: err.Error()}
			}
		}
	}

	for table, entries := range map[string]map[string]ModEntry{
		"mods.frequent":  f.Mods.Frequent,
		"mods.conflicts": f.Mods.Conflicts,
		"mods.important": f.Mods.Important,
		"mods.solutions": f.Mods.Solutions,
	} {
		if err := validateCount(table, len(entries)); err != nil {
			return err
		}
		for key, entry := range entries {
			if key == "" {
				return &RuleError{Table: table, Message: "entry key is empty"}
			}
			if entry.Description == "" {
				return &RuleError{Table: table, Key: key, Message: "description is empty"}
			}
		}
	}

	// Pair-keyed tables additionally need the separator.
	for table, entries := range map[string]map[string]ModEntry{
		"mods.conflicts": f.Mods.Conflicts,
		"mods.important": f.Mods.Important,
	} {
		for key := range entries {
			if _, _, ok := SplitPairKey(key); !ok {
				return &RuleError{Table: table, Key: key, Message: `key must have the form "left | right"`}
			}
		}
	}

	for i, id := range f.FormIDs.Blacklist {
		hex := strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X")
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return &RuleError{
				Table:   "formids.blacklist",
				Key:     id,
				Message: fmt.Sprintf("entry %d is not a 32-bit hex value", i),
			}
		}
	}

	if f.Plugins.HardLimit < 0 || f.Plugins.RecommendedLimit < 0 {
		return &ValidationError{Field: "plugins", Message: "limits must be non-negative"}
	}
	if f.Plugins.HardLimit > 0 && f.Plugins.RecommendedLimit > f.Plugins.HardLimit {
		return &ValidationError{Field: "plugins", Message: "recommended_limit exceeds hard_limit"}
	}

	return nil
}

// Signal grammar prefixes understood by the suspect engine.
const (
	SignalMainErrorRequired = "ME-REQ"
	SignalMainErrorOptional = "ME-OPT"
	SignalNegative          = "NOT"
)

// validateSignal checks one stack-rule signal against the grammar. A signal
// without a "|" is a plain substring; otherwise the prefix must be ME-REQ,
// ME-OPT, NOT, or a decimal occurrence count.
func validateSignal(signal string) error {
	if signal == "" {
		return errors.New("signal is empty")
	}
	if len(signal) > MaxSignalLength {
		return errors.New(signalTooLong(signal))
	}
	prefix, rest, ok := strings.Cut(signal, "|")
	if !ok {
		return nil
	}
	if rest == "" {
		return fmt.Errorf("signal %q has an empty match text", signal)
	}
	switch prefix {
	case SignalMainErrorRequired, SignalMainErrorOptional, SignalNegative:
		return nil
	}
	if n, err := strconv.Atoi(prefix); err != nil || n < 1 {
		return fmt.Errorf("signal %q has unknown modifier %q", signal, prefix)
	}
	return nil
}

func validateCount(table string, n int) error {
	if n > MaxRuleCount {
		return &ValidationError{
			Field:   table,
			Message: fmt.Sprintf("too many entries (%d), maximum allowed is %d", n, MaxRuleCount),
		}
	}
	return nil
}

func signalTooLong(signal string) string {
	return fmt.Sprintf("signal too long: %d bytes (max %d)", len(signal), MaxSignalLength)
}
