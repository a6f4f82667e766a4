// Package crashlens analyzes game crash logs produced by crash-generator
// script extender plugins.
//
// This package allows you to:
//   - Split a raw crash log into named segments
//   - Match table-driven crash signatures against the main error and call stack
//   - Decode and validate FormIDs against the declared plugin list
//   - Cross-reference installed mods against compatibility tables
//   - Flag problematic crash-generator settings
//
// # Basic Usage
//
// To scan a single crash log:
//
//	scanner, err := crashlens.New(
//	    crashlens.WithRulesFile("rules.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	result, err := scanner.ScanFile(ctx, "crash-2024-05-26-11-01-47.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, s := range result.Suspects {
//	    fmt.Printf("[%d] %s (%.0f%%)\n", s.Severity, s.Name, s.Confidence*100)
//	}
//
// # Watching a Directory
//
// To scan new crash logs as they appear:
//
//	watcher, err := crashlens.NewWatcher(scanner,
//	    crashlens.WithWatchDir(dir),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Close()
//
//	results, errs, err := watcher.Watch(ctx)
//
// # Rule Tables
//
// Crash signatures, compatibility tables and scanner tuning all live in a
// YAML rules file loaded via the [rules] subpackage. See that package for
// the file format and the signal grammar used by stack rules.
package crashlens
