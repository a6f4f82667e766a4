package crashlens

import (
	"errors"
	"fmt"

	"github.com/crashlens/crashlens-go/internal/logfinder"
)

// Sentinel errors returned by the package.
var (
	// ErrWatcherClosed is returned by Watch after Close has been called.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyWatching is returned when Watch is called twice on the same
	// Watcher.
	ErrAlreadyWatching = errors.New("watcher is already watching")

	// ErrNoRules is returned when a Scanner is built without rule tables.
	ErrNoRules = errors.New("no rules configured")

	// ErrLogTooLarge is returned when a crash log exceeds MaxLogSize.
	ErrLogTooLarge = errors.New("crash log exceeds size limit")

	// ErrLogDirNotFound is returned when no crash-log directory could be
	// located.
	ErrLogDirNotFound = logfinder.ErrLogDirNotFound

	// ErrNoLogFiles is returned when a crash-log directory contains no logs.
	ErrNoLogFiles = logfinder.ErrNoLogFiles
)

// WatchOp identifies the watcher operation that failed.
type WatchOp string

const (
	WatchOpSetup  WatchOp = "setup"
	WatchOpNotify WatchOp = "notify"
	WatchOpRead   WatchOp = "read"
	WatchOpScan   WatchOp = "scan"
)

// WatchError wraps an error from the watcher with the failing operation and
// the path involved, if any.
type WatchError struct {
	Op   WatchOp
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("watch %s: %v", e.Op, e.Err)
}

func (e *WatchError) Unwrap() error { return e.Err }

// AnalyzerError reports that one analyzer failed or panicked during a scan.
// The scan itself still succeeds; the failing analyzer's findings are simply
// absent from the result.
type AnalyzerError struct {
	Analyzer string
	Err      error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer %s: %v", e.Analyzer, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }
