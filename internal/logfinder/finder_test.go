package logfinder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeLogs creates crash logs with ascending modification times.
func writeLogs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir,
		"crash-2024-05-24-10-00-00.log",
		"crash-2024-05-25-10-00-00.log",
		"crash-2024-05-26-10-00-00.log",
	)
	// Non-matching names are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := ListLogFiles(dir)
	if err != nil {
		t.Fatalf("ListLogFiles() error = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("ListLogFiles() returned %d paths, want 3", len(paths))
	}
	// Newest first.
	if filepath.Base(paths[0]) != "crash-2024-05-26-10-00-00.log" {
		t.Errorf("ListLogFiles()[0] = %v, want newest", filepath.Base(paths[0]))
	}
}

func TestFindLatestLogFile(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir,
		"crash-2024-05-24-10-00-00.log",
		"crash-2024-05-26-10-00-00.log",
	)

	got, err := FindLatestLogFile(dir)
	if err != nil {
		t.Fatalf("FindLatestLogFile() error = %v", err)
	}
	if filepath.Base(got) != "crash-2024-05-26-10-00-00.log" {
		t.Errorf("FindLatestLogFile() = %v", got)
	}
}

func TestFindLatestLogFile_NoFiles(t *testing.T) {
	_, err := FindLatestLogFile(t.TempDir())
	if !errors.Is(err, ErrNoLogFiles) {
		t.Errorf("FindLatestLogFile() error = %v, want %v", err, ErrNoLogFiles)
	}
}

func TestFindLogDir_Explicit(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir, "crash-2024-05-26-10-00-00.log")

	// Explicit takes priority over env.
	t.Setenv(EnvLogDir, "/some/other/path")

	got, err := FindLogDir(dir)
	if err != nil {
		t.Fatalf("FindLogDir() error = %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if got != resolved {
		t.Errorf("FindLogDir() = %v, want %v", got, resolved)
	}
}

func TestFindLogDir_EnvVar(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir, "crash-2024-05-26-10-00-00.log")

	t.Setenv(EnvLogDir, dir)

	got, err := FindLogDir("")
	if err != nil {
		t.Fatalf("FindLogDir() error = %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if got != resolved {
		t.Errorf("FindLogDir() = %v, want %v", got, resolved)
	}
}

func TestFindLogDir_ExplicitWithoutLogs(t *testing.T) {
	_, err := FindLogDir(t.TempDir())
	if !errors.Is(err, ErrLogDirNotFound) {
		t.Errorf("FindLogDir() error = %v, want %v", err, ErrLogDirNotFound)
	}
}

func TestFindLogDir_ExplicitMissing(t *testing.T) {
	_, err := FindLogDir(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrLogDirNotFound) {
		t.Errorf("FindLogDir() error = %v, want %v", err, ErrLogDirNotFound)
	}
}
