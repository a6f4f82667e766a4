package crashlens_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crashlens/crashlens-go/pkg/crashlens"
)

func newWatcher(t *testing.T, dir string) *crashlens.Watcher {
	t.Helper()
	w, err := crashlens.NewWatcher(newScanner(t),
		crashlens.WithWatchDir(dir),
		crashlens.WithQuiescence(150*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcher_ScansNewLog(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, errs, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Give the notify watcher time to start.
	time.Sleep(200 * time.Millisecond)

	data, err := os.ReadFile("testdata/crash-2024-05-26-11-01-47.log")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "crash-2024-05-26-11-01-47.log")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	// A non-matching file in the same directory must not produce a result.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-results:
		if r.Err != nil {
			t.Fatalf("scan error = %v", r.Err)
		}
		if r.Path != path {
			t.Errorf("result path = %v, want %v", r.Path, path)
		}
		if r.Result.LogName != "crash-2024-05-26-11-01-47.log" {
			t.Errorf("log name = %v", r.Result.LogName)
		}
		if len(r.Result.Suspects) == 0 {
			t.Error("expected suspects from the fixture log")
		}
	case err := <-errs:
		t.Fatalf("unexpected watch error: %v", err)
	case <-ctx.Done():
		t.Fatal("timeout waiting for scan result")
	}

	// No second result should arrive for the ignored file.
	select {
	case r := <-results:
		t.Fatalf("unexpected extra result for %v", r.Path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_WatchTwice(t *testing.T) {
	w := newWatcher(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, _, err := w.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if _, _, err := w.Watch(ctx); !errors.Is(err, crashlens.ErrAlreadyWatching) {
		t.Errorf("second Watch() error = %v, want %v", err, crashlens.ErrAlreadyWatching)
	}
}

func TestWatcher_WatchAfterClose(t *testing.T) {
	w := newWatcher(t, t.TempDir())
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, _, err := w.Watch(context.Background()); !errors.Is(err, crashlens.ErrWatcherClosed) {
		t.Errorf("Watch() after Close error = %v, want %v", err, crashlens.ErrWatcherClosed)
	}
}

func TestWatcher_ChannelsCloseOnCancel(t *testing.T) {
	w := newWatcher(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	results, errs, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for results != nil || errs != nil {
		select {
		case _, ok := <-results:
			if !ok {
				results = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-deadline:
			t.Fatal("channels did not close after cancel")
		}
	}

	// Close after cancellation is a no-op and must not block.
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWatcher_Dir(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, dir)
	resolved, _ := filepath.EvalSymlinks(dir)
	if w.Dir() != dir && w.Dir() != resolved {
		t.Errorf("Dir() = %v, want %v", w.Dir(), dir)
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := crashlens.NewWatcher(newScanner(t),
		crashlens.WithWatchDir(filepath.Join(t.TempDir(), "nope")))
	if err == nil {
		t.Error("NewWatcher() expected error for missing directory")
	}
}
