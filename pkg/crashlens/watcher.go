package crashlens

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nxadm/tail"

	"github.com/crashlens/crashlens-go/internal/logfinder"
)

// watcherErrBuffer is the buffer size for the error channel.
// A small buffer prevents error loss during brief moments when the consumer
// is busy processing results, while keeping memory usage minimal.
const watcherErrBuffer = 16

// Watcher monitors a directory for new crash logs and scans each one once
// the crash generator has finished writing it.
type Watcher struct {
	scanner *Scanner
	cfg     watchConfig
	dir     string
	log     *slog.Logger

	mu       sync.Mutex
	closed   bool
	watching bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// NewWatcher creates a watcher for new crash logs.
// Validates options and the watch directory. Does NOT start goroutines
// (cheap to call).
//
// If no directory is configured via WithWatchDir, the crash-log directory is
// auto-detected, honoring the CRASHLENS_LOGDIR environment variable.
func NewWatcher(scanner *Scanner, opts ...WatchOption) (*Watcher, error) {
	cfg := applyWatchOptions(opts)

	dir := cfg.dir
	if dir == "" {
		found, err := logfinder.FindLogDir("")
		if err != nil {
			return nil, err
		}
		dir = found
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, ErrLogDirNotFound
		}
	}

	log := cfg.logger
	if log == nil {
		log = scanner.log
	}

	return &Watcher{
		scanner: scanner,
		cfg:     *cfg,
		dir:     dir,
		log:     log,
	}, nil
}

// Dir returns the directory being watched.
func (w *Watcher) Dir() string { return w.dir }

// Watch starts watching and returns channels.
// Starts internal goroutines here.
// When ctx is cancelled, channels are closed automatically.
// Both channels close on ctx.Done() or fatal error.
// Watch can only be called once per Watcher instance.
//
// Returns ErrWatcherClosed if the watcher has been closed.
// Returns ErrAlreadyWatching if Watch() has already been called.
func (w *Watcher) Watch(ctx context.Context) (<-chan FileResult, <-chan error, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, nil, ErrWatcherClosed
	}
	if w.watching {
		return nil, nil, ErrAlreadyWatching
	}
	w.watching = true

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	resultCh := make(chan FileResult)
	errCh := make(chan error, watcherErrBuffer)

	go w.run(ctx, resultCh, errCh)

	return resultCh, errCh, nil
}

// Close stops the watcher and releases resources.
// Safe to call multiple times.
// Blocks until the goroutine has exited.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true

	if w.cancel != nil {
		w.cancel()
	}
	doneCh := w.doneCh
	w.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, resultCh chan<- FileResult, errCh chan<- error) {
	var pending sync.WaitGroup
	defer close(w.doneCh)
	defer close(errCh)
	defer close(resultCh)
	defer pending.Wait()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		sendError(ctx, errCh, &WatchError{Op: WatchOpSetup, Err: err})
		return
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		sendError(ctx, errCh, &WatchError{Op: WatchOpSetup, Path: w.dir, Err: err})
		return
	}
	w.log.Debug("watching for crash logs", "dir", w.dir)

	// Paths currently being read. A crash log produces one create event
	// followed by a burst of writes; only the first event starts a reader.
	inFlight := make(map[string]struct{})
	var mu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if match, _ := filepath.Match(logfinder.LogFilePattern, filepath.Base(ev.Name)); !match {
				continue
			}
			mu.Lock()
			if _, busy := inFlight[ev.Name]; busy {
				mu.Unlock()
				continue
			}
			inFlight[ev.Name] = struct{}{}
			mu.Unlock()

			w.log.Debug("new crash log detected", "path", ev.Name)
			pending.Add(1)
			go func(path string) {
				defer pending.Done()
				defer func() {
					mu.Lock()
					delete(inFlight, path)
					mu.Unlock()
				}()
				w.consume(ctx, path, resultCh, errCh)
			}(ev.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			sendError(ctx, errCh, &WatchError{Op: WatchOpNotify, Err: err})
		}
	}
}

// consume tails a newly created crash log until the crash generator stops
// writing, then scans the collected content.
//
// Crash logs are written in bursts, so the file observed at the create event
// is usually truncated. Tailing with a quiescence timer reads exactly what
// the generator wrote without racing its writes.
func (w *Watcher) consume(ctx context.Context, path string, resultCh chan<- FileResult, errCh chan<- error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:        true,
		MustExist:     true,
		CompleteLines: true,
		Logger:        tail.DiscardingLogger,
	})
	if err != nil {
		sendError(ctx, errCh, &WatchError{Op: WatchOpRead, Path: path, Err: err})
		return
	}
	defer t.Cleanup()

	var lines []string
	idle := time.NewTimer(w.cfg.quiescence)
	defer idle.Stop()

collect:
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return
		case line, ok := <-t.Lines:
			if !ok {
				break collect
			}
			if line.Err != nil {
				sendError(ctx, errCh, &WatchError{Op: WatchOpRead, Path: path, Err: line.Err})
				continue
			}
			lines = append(lines, line.Text)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(w.cfg.quiescence)
		case <-idle.C:
			break collect
		}
	}
	_ = t.Stop()

	w.log.Debug("crash log complete", "path", path, "lines", len(lines))

	log, err := w.scanner.Parse(ctx, path, strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		w.emit(ctx, resultCh, FileResult{Path: path, Err: &WatchError{Op: WatchOpScan, Path: path, Err: err}})
		return
	}
	result, err := w.scanner.Scan(ctx, log)
	if err != nil {
		w.emit(ctx, resultCh, FileResult{Path: path, Err: &WatchError{Op: WatchOpScan, Path: path, Err: err}})
		return
	}
	w.emit(ctx, resultCh, FileResult{Path: path, Result: result})
}

func (w *Watcher) emit(ctx context.Context, resultCh chan<- FileResult, r FileResult) {
	select {
	case resultCh <- r:
	case <-ctx.Done():
	}
}

// sendError sends an error to the error channel.
// With a buffered channel, errors are only dropped if the buffer is full.
// The context case ensures we don't block during shutdown.
func sendError(ctx context.Context, errCh chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errCh <- err:
	case <-ctx.Done():
	default:
	}
}
