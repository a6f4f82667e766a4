package crashlens

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/crashlens/crashlens-go/internal/formid"
	"github.com/crashlens/crashlens-go/internal/gpu"
	"github.com/crashlens/crashlens-go/internal/modcheck"
	"github.com/crashlens/crashlens-go/internal/plugins"
	"github.com/crashlens/crashlens-go/internal/records"
	"github.com/crashlens/crashlens-go/internal/safefile"
	"github.com/crashlens/crashlens-go/internal/segment"
	"github.com/crashlens/crashlens-go/internal/settings"
	"github.com/crashlens/crashlens-go/internal/suspect"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
	"github.com/crashlens/crashlens-go/pkg/crashlens/rules"
)

// MaxLogSize is the maximum crash-log size accepted by ParseFile (8MB).
// Crash generators produce logs well under 1MB; anything larger is not a
// crash log.
const MaxLogSize = 8 * 1024 * 1024

// maxLineBytes bounds a single log line during scanning.
const maxLineBytes = 1 * 1024 * 1024

// discardLogger returns a logger that discards all output.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ScanResult holds every finding for one crash log. Findings from different
// analyzers are independent; a failed analyzer leaves its slice empty and
// records an AnalyzerError.
type ScanResult struct {
	LogName string

	GameVersion     string
	CrashGenVersion string
	MainError       string
	GPU             crash.GPUInfo

	// Suspects from the table-driven rules and built-in checks, deduplicated
	// and sorted by severity, then confidence.
	Suspects []crash.Suspect

	Plugins        []crash.Plugin
	PluginCounts   crash.PluginCounts
	PluginIssues   []string
	LimitTriggered bool

	// StackMatches lists declared plugins that also appear in the call
	// stack, by occurrence count.
	StackMatches []crash.PluginMatch

	FormIDs        []crash.FormID
	FormIDWarnings []string

	Records        []crash.RecordMatch
	SettingsIssues []crash.SettingsIssue
	ModConflicts   []crash.ModConflict

	// Incomplete is set when the log has no plugin segment. Analyzers that
	// need the plugin list run with an empty one.
	Incomplete bool

	// AnalyzerErrors lists analyzers that failed or panicked. Empty on a
	// clean scan.
	AnalyzerErrors []error
}

// Scanner analyzes crash logs against a loaded rule set. A Scanner is safe
// for concurrent use; all mutable state lives in per-scan values.
type Scanner struct {
	cfg   config
	rules *rules.File
	store *formid.DescriptionStore
	log   *slog.Logger

	// Effective plugin thresholds; rule-file values with defaults applied.
	hardLimit        int
	recommendedLimit int

	segmenter segment.Segmenter
	suspects  suspect.Engine
	records   *records.Scanner
	settings  settings.Scanner
	detector  modcheck.Detector
}

// New creates a Scanner from functional options. Rule tables must be
// supplied via WithRules or WithRulesFile.
func New(opts ...Option) (*Scanner, error) {
	cfg := applyOptions(opts)

	tables := cfg.rules
	if tables == nil && cfg.rulesPath != "" {
		loaded, err := rules.Load(cfg.rulesPath)
		if err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		tables = loaded
	}
	if tables == nil {
		return nil, ErrNoRules
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	var store *formid.DescriptionStore
	if cfg.formIDDBPath != "" {
		var err error
		store, err = formid.OpenDescriptionStore(cfg.formIDDBPath, cfg.game, log)
		if err != nil {
			return nil, fmt.Errorf("opening formid database: %w", err)
		}
	}

	hardLimit := tables.Plugins.HardLimit
	if hardLimit == 0 {
		hardLimit = rules.DefaultPluginHardLimit
	}
	recommendedLimit := tables.Plugins.RecommendedLimit
	if recommendedLimit == 0 {
		recommendedLimit = rules.DefaultPluginRecommendedLimit
	}

	return &Scanner{
		cfg:              *cfg,
		rules:            tables,
		store:            store,
		log:              log,
		hardLimit:        hardLimit,
		recommendedLimit: recommendedLimit,
		segmenter: segment.Segmenter{
			GameRootName: cfg.gameRootName,
			CrashGenName: cfg.crashGenName,
		},
		suspects: suspect.Engine{
			ErrorRules: tables.Suspects.Errors,
			StackRules: tables.Suspects.Stack,
			Log:        log,
		},
		records: records.NewScanner(tables.Records.Detect, tables.Records.Ignore),
		settings: settings.Scanner{
			CrashGenName: cfg.crashGenName,
			Ignore:       tables.Settings.Ignore,
		},
		detector: modcheck.Detector{
			Tables: tables.Mods,
			Log:    log,
		},
	}, nil
}

// Rules returns the loaded rule tables.
func (s *Scanner) Rules() *rules.File { return s.rules }

// Close releases the FormID description store, if one was opened.
// Safe to call multiple times and on a Scanner without a store.
func (s *Scanner) Close() error {
	return s.store.Close()
}

// Parse reads a crash log from r and splits it into segments.
// fileName is recorded on the result for reporting; it is not opened.
func (s *Scanner) Parse(ctx context.Context, fileName string, r io.Reader) (*crash.Log, error) {
	sc := bufio.NewScanner(io.LimitReader(r, MaxLogSize+1))
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var lines []string
	var size int
	for sc.Scan() {
		size += len(sc.Bytes()) + 1
		if size > MaxLogSize {
			return nil, ErrLogTooLarge
		}
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading crash log: %w", err)
	}

	return s.segmenter.Parse(ctx, filepath.Base(fileName), lines)
}

// ParseFile opens path and parses it. Only regular files are accepted.
func (s *Scanner) ParseFile(ctx context.Context, path string) (*crash.Log, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		return nil, fmt.Errorf("opening crash log: %w", err)
	}
	defer f.Close()

	if info.Size() > MaxLogSize {
		return nil, ErrLogTooLarge
	}
	return s.Parse(ctx, path, f)
}

// ScanFile parses and scans the crash log at path.
func (s *Scanner) ScanFile(ctx context.Context, path string) (*ScanResult, error) {
	log, err := s.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx, log)
}

// Scan runs every analyzer against a parsed log.
//
// The plugin list and GPU info are computed first because several analyzers
// depend on them; the remaining analyzers then run concurrently. A panic in
// one analyzer is recovered and recorded in AnalyzerErrors without affecting
// the others. The returned error is non-nil only when the context is
// cancelled.
func (s *Scanner) Scan(ctx context.Context, log *crash.Log) (*ScanResult, error) {
	result := &ScanResult{
		LogName:         log.FileName,
		GameVersion:     log.GameVersion,
		CrashGenVersion: log.CrashGenVersion,
		MainError:       log.MainError,
		Incomplete:      !log.HasSegment(crash.SegmentPlugins),
	}

	result.GPU = gpu.Detect(log.Segment(crash.SegmentSystem))

	analyzer := plugins.Analyzer{
		HardLimit:        s.hardLimit,
		RecommendedLimit: s.recommendedLimit,
		Ignore:           s.rules.Plugins.Ignore,
		Log:              s.log,
	}
	pluginResult, err := analyzer.Analyze(ctx, log.Segment(crash.SegmentPlugins))
	if err != nil {
		return nil, err
	}
	result.Plugins = pluginResult.Plugins
	result.PluginCounts = pluginResult.Counts
	result.PluginIssues = pluginResult.Issues
	result.LimitTriggered = pluginResult.LimitTriggered

	// Script-extender DLLs participate in conflict detection and call-stack
	// matching alongside the load-order plugins.
	xseModules := plugins.ExtractModuleNames(log.Segment(crash.SegmentXSEModules))
	matchSet := plugins.JoinModules(pluginResult.Plugins, xseModules)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	run := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("analyzer panicked", "analyzer", name, "panic", r,
						"stack", string(debug.Stack()))
					mu.Lock()
					result.AnalyzerErrors = append(result.AnalyzerErrors,
						&AnalyzerError{Analyzer: name, Err: fmt.Errorf("panic: %v", r)})
					mu.Unlock()
				}
			}()
			if err := f(); err != nil {
				mu.Lock()
				result.AnalyzerErrors = append(result.AnalyzerErrors,
					&AnalyzerError{Analyzer: name, Err: err})
				mu.Unlock()
			}
		}()
	}

	callstack := log.Segment(crash.SegmentCallStack)

	run("suspects", func() error {
		found, err := s.suspects.Scan(ctx, log)
		if err != nil {
			return err
		}
		found = append(found, suspect.BuiltinChecks(log, pluginResult.Counts.Total,
			s.hardLimit, s.recommendedLimit)...)
		found = suspect.Dedupe(found)
		suspect.Sort(found)
		result.Suspects = found
		return nil
	})

	run("formids", func() error {
		ids, err := formid.Extract(ctx, log, pluginResult.Plugins, s.log)
		if err != nil {
			return err
		}
		s.store.Annotate(ctx, ids)
		result.FormIDs = ids
		result.FormIDWarnings = formid.Validate(ids, pluginResult.Counts.Total,
			s.rules.FormIDs.Blacklist)
		return nil
	})

	run("records", func() error {
		matches, err := s.records.Scan(ctx, callstack)
		if err != nil {
			return err
		}
		result.Records = matches
		return nil
	})

	run("settings", func() error {
		block := settings.ParseBlock(log.Segment(crash.SegmentSettings))
		result.SettingsIssues = s.settings.Scan(block, xseModules)
		return nil
	})

	run("modcheck", func() error {
		conflicts, err := s.detector.Detect(ctx, matchSet, result.GPU,
			pluginResult.LimitTriggered)
		if err != nil {
			return err
		}
		result.ModConflicts = conflicts
		return nil
	})

	run("stackmatch", func() error {
		names := make([]string, len(matchSet))
		for i, p := range matchSet {
			names[i] = p.FileName
		}
		matches, err := analyzer.MatchCallStack(ctx, callstack, names)
		if err != nil {
			return err
		}
		result.StackMatches = matches
		return nil
	})

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
