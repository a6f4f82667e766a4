// Package logfinder provides crash-log directory and file detection.
package logfinder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EnvLogDir is the environment variable name for specifying the crash-log
// directory.
const EnvLogDir = "CRASHLENS_LOGDIR"

// LogFilePattern matches crash logs produced by the crash generator.
const LogFilePattern = "crash-*.log"

// Sentinel errors.
var (
	ErrLogDirNotFound = errors.New("crash log directory not found")
	ErrNoLogFiles     = errors.New("no crash log files found")
)

// DefaultLogDirs returns candidate crash-log directories in priority order.
// Crash generators write next to the script extender's own logs under the
// user's documents folder.
func DefaultLogDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	docs := filepath.Join(home, "Documents", "My Games")
	return []string{
		filepath.Join(docs, "Fallout4", "F4SE"),
		filepath.Join(docs, "Fallout4 VR", "F4SE"),
	}
}

// FindLogDir returns the crash-log directory.
//
// Priority:
//  1. explicit (if non-empty)
//  2. CRASHLENS_LOGDIR environment variable
//  3. Auto-detect from DefaultLogDirs()
//
// Returns ErrLogDirNotFound if no valid directory is found.
// The returned path has symlinks resolved for consistency.
func FindLogDir(explicit string) (string, error) {
	if explicit != "" {
		if resolved := resolveAndValidateLogDir(explicit); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: specified directory is invalid or contains no crash logs", ErrLogDirNotFound)
	}

	if envDir := os.Getenv(EnvLogDir); envDir != "" {
		if resolved := resolveAndValidateLogDir(envDir); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s environment variable points to invalid directory", ErrLogDirNotFound, EnvLogDir)
	}

	for _, dir := range DefaultLogDirs() {
		if resolved := resolveAndValidateLogDir(dir); resolved != "" {
			return resolved, nil
		}
	}

	return "", ErrLogDirNotFound
}

// logCandidate holds a log file path and its cached modification time.
// This avoids race conditions where files are deleted between stat and sort.
type logCandidate struct {
	path    string
	modTime int64
}

// ListLogFiles returns all crash-log files in the directory, newest first.
//
// Returns ErrNoLogFiles if no crash logs are found.
//
// Stat results are cached up front so files deleted mid-sort cannot skew the
// ordering.
func ListLogFiles(dir string) ([]string, error) {
	pattern := filepath.Join(dir, LogFilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing crash logs: %w", err)
	}

	candidates := make([]logCandidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, logCandidate{
			path:    m,
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(candidates) == 0 {
		return nil, ErrNoLogFiles
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

// FindLatestLogFile returns the path to the most recently modified crash log
// in the given directory.
//
// Returns ErrNoLogFiles if no crash logs are found.
func FindLatestLogFile(dir string) (string, error) {
	paths, err := ListLogFiles(dir)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// resolveAndValidateLogDir resolves symlinks and validates the directory.
// Returns the resolved path if valid, empty string otherwise.
// This helps prevent symlink-based attacks and ensures path consistency.
func resolveAndValidateLogDir(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}

	pattern := filepath.Join(resolved, LogFilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}

	return resolved
}
