package crashlens

import (
	"log/slog"
	"time"

	"github.com/crashlens/crashlens-go/pkg/crashlens/rules"
)

// Option configures a Scanner using the functional options pattern.
type Option func(*config)

// config holds internal configuration for a Scanner.
type config struct {
	rules        *rules.File
	rulesPath    string
	formIDDBPath string
	game         string
	gameRootName string
	crashGenName string
	workers      int
	logger       *slog.Logger
}

// Defaults when no game-specific names are configured.
const (
	defaultGame         = "Fallout4"
	defaultGameRootName = "Fallout 4"
	defaultCrashGenName = "Buffout 4"
)

// defaultConfig returns a config with sensible defaults.
func defaultConfig() *config {
	return &config{
		game:         defaultGame,
		gameRootName: defaultGameRootName,
		crashGenName: defaultCrashGenName,
	}
}

// applyOptions applies functional options to a config.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithRules supplies already-loaded rule tables. Takes precedence over
// WithRulesFile.
func WithRules(f *rules.File) Option {
	return func(c *config) {
		c.rules = f
	}
}

// WithRulesFile loads rule tables from a YAML file when the Scanner is
// created.
func WithRulesFile(path string) Option {
	return func(c *config) {
		c.rulesPath = path
	}
}

// WithFormIDDatabase sets the path to a SQLite database of FormID
// descriptions. A missing file is not an error; descriptions are simply left
// empty.
func WithFormIDDatabase(path string) Option {
	return func(c *config) {
		c.formIDDBPath = path
	}
}

// WithGame sets the game identifier used as the FormID database table name.
// Default: "Fallout4".
func WithGame(game string) Option {
	return func(c *config) {
		c.game = game
	}
}

// WithGameRootName sets the game name expected in the log header.
// Default: "Fallout 4".
func WithGameRootName(name string) Option {
	return func(c *config) {
		c.gameRootName = name
	}
}

// WithCrashGenName sets the crash generator's display name, used both for
// header parsing and in settings warnings. Default: "Buffout 4".
func WithCrashGenName(name string) Option {
	return func(c *config) {
		c.crashGenName = name
	}
}

// WithWorkers sets the worker count for batch scanning. Zero or negative
// selects the default (the number of CPUs, capped at 8).
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithLogger sets a custom logger for debug output.
// If logger is nil, logging is disabled (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WatchOption configures a Watcher.
type WatchOption func(*watchConfig)

// watchConfig holds internal configuration for a Watcher.
type watchConfig struct {
	dir        string
	quiescence time.Duration
	logger     *slog.Logger
}

// defaultQuiescence is how long a new crash log must go without writes
// before it is considered complete and scanned.
const defaultQuiescence = 2 * time.Second

func applyWatchOptions(opts []WatchOption) *watchConfig {
	cfg := &watchConfig{quiescence: defaultQuiescence}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithWatchDir sets the directory to watch for new crash logs.
// If not set, the directory is auto-detected the same way ScanLatest does,
// honoring the CRASHLENS_LOGDIR environment variable.
func WithWatchDir(dir string) WatchOption {
	return func(c *watchConfig) {
		c.dir = dir
	}
}

// WithQuiescence sets how long a new file must be idle before it is scanned.
// Crash generators write logs in several bursts, so scanning on the first
// write event would see a truncated file. Default: 2 seconds.
func WithQuiescence(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.quiescence = d
		}
	}
}

// WithWatchLogger sets a custom logger for the watcher's debug output.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.logger = logger
	}
}
