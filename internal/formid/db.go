package formid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// tableNamePattern restricts game table names to identifier characters,
// since table names cannot be bound as query parameters.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// DescriptionStore looks up record descriptions in an external SQLite
// FormID database, keyed by (local id, plugin). Lookups are cached for the
// lifetime of the store; the cache allows concurrent reads and idempotent
// concurrent writes (last writer wins).
//
// A nil *DescriptionStore is valid and reports no descriptions, so callers
// never branch on database availability.
type DescriptionStore struct {
	db    *sql.DB
	table string
	log   *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// OpenDescriptionStore opens the FormID database at path, reading from the
// table named after the game (e.g. "Fallout4"). A missing file is not an
// error: it yields a nil store and lookups degrade to no-description.
func OpenDescriptionStore(path, game string, logger *slog.Logger) (*DescriptionStore, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if logger != nil {
			logger.Debug("form id database not found, descriptions disabled", "path", path)
		}
		return nil, nil
	}
	if !tableNamePattern.MatchString(game) {
		return nil, fmt.Errorf("invalid form id database table name %q", game)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open form id database: %w", err)
	}

	return &DescriptionStore{
		db:    db,
		table: game,
		log:   logger,
		cache: make(map[string]string),
	}, nil
}

// Close releases the underlying database handle.
func (s *DescriptionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the description for a local FormID within a plugin. The
// composite cache key is the uppercased local id plus the lowercased plugin
// name. Database errors degrade to "not found" and are logged, never
// propagated: description lookup is strictly best-effort.
func (s *DescriptionStore) Lookup(ctx context.Context, localID uint32, plugin string) (string, bool) {
	if s == nil || s.db == nil {
		return "", false
	}

	key := fmt.Sprintf("%06X", localID) + "|" + strings.ToLower(plugin)

	s.mu.RLock()
	desc, hit := s.cache[key]
	s.mu.RUnlock()
	if hit {
		return desc, desc != ""
	}

	query := fmt.Sprintf("SELECT entry FROM %s WHERE formid = ? AND plugin = ? COLLATE NOCASE", s.table)
	var entry string
	err := s.db.QueryRowContext(ctx, query, fmt.Sprintf("%06X", localID), plugin).Scan(&entry)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		entry = ""
	case err != nil:
		if s.log != nil {
			s.log.Debug("form id lookup failed", "plugin", plugin, "error", err)
		}
		return "", false
	}

	s.mu.Lock()
	s.cache[key] = entry
	s.mu.Unlock()

	return entry, entry != ""
}

// Annotate fills FormID.Description for every id with a known source
// plugin. An absent store or missing entries leave descriptions empty.
func (s *DescriptionStore) Annotate(ctx context.Context, ids []crash.FormID) {
	if s == nil {
		return
	}
	for i := range ids {
		if ids[i].SourcePlugin == "" {
			continue
		}
		if desc, ok := s.Lookup(ctx, ids[i].LocalID, ids[i].SourcePlugin); ok {
			ids[i].Description = desc
		}
	}
}
