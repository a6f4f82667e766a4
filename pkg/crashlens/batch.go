package crashlens

import (
	"context"
	"runtime"
	"sync"

	"github.com/crashlens/crashlens-go/internal/logfinder"
)

// maxBatchWorkers caps the default worker count. Scans are CPU-bound, so
// more workers than cores buys nothing.
const maxBatchWorkers = 8

// FileResult pairs one crash-log path with its scan outcome. Exactly one of
// Result and Err is set.
type FileResult struct {
	Path   string
	Result *ScanResult
	Err    error
}

// Stats summarizes a batch scan.
type Stats struct {
	// Scanned counts logs that produced a result, complete or not.
	Scanned int

	// Incomplete counts scanned logs missing their plugin segment.
	Incomplete int

	// Failed counts logs that could not be parsed at all.
	Failed int
}

// ScanFiles scans the given crash logs concurrently using the Scanner's
// configured worker count. Results are returned in input order.
//
// Individual log failures are reported per file, never as the returned
// error; that is non-nil only when the context is cancelled.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string) ([]FileResult, Stats, error) {
	workers := s.cfg.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > maxBatchWorkers {
			workers = maxBatchWorkers
		}
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	results := make([]FileResult, len(paths))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				res, err := s.ScanFile(ctx, paths[i])
				results[i] = FileResult{Path: paths[i], Result: res, Err: err}
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	for _, r := range results {
		switch {
		case r.Err != nil:
			stats.Failed++
		case r.Result.Incomplete:
			stats.Scanned++
			stats.Incomplete++
		default:
			stats.Scanned++
		}
	}
	return results, stats, nil
}

// ScanDir scans every crash log in dir, newest first. An empty dir selects
// the auto-detected crash-log directory.
func (s *Scanner) ScanDir(ctx context.Context, dir string) ([]FileResult, Stats, error) {
	resolved, err := logfinder.FindLogDir(dir)
	if err != nil {
		return nil, Stats{}, err
	}
	paths, err := logfinder.ListLogFiles(resolved)
	if err != nil {
		return nil, Stats{}, err
	}
	return s.ScanFiles(ctx, paths)
}

// ScanLatest scans the newest crash log in dir. An empty dir selects the
// auto-detected crash-log directory.
func (s *Scanner) ScanLatest(ctx context.Context, dir string) (*ScanResult, error) {
	resolved, err := logfinder.FindLogDir(dir)
	if err != nil {
		return nil, err
	}
	path, err := logfinder.FindLatestLogFile(resolved)
	if err != nil {
		return nil, err
	}
	return s.ScanFile(ctx, path)
}
