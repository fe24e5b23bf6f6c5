// Package config loads ShelfBridge's configuration from a YAML file and
// environment variables, with explicit precedence YAML > environment >
// defaults.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohit-purandare/shelfbridge/internal/progress"
	"github.com/rohit-purandare/shelfbridge/internal/session"
	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
)

// User is one entry of the `users` list.
type User struct {
	ID              string   `yaml:"id"`
	ABSUrl          string   `yaml:"abs_url"`
	ABSToken        string   `yaml:"abs_token"`
	HardcoverToken  string   `yaml:"hardcover_token"`
	Libraries       []string `yaml:"libraries,omitempty"`
}

// RereadDetection mirrors the progress package's thresholds with YAML
// tags`reread_detection.*` keys.
type RereadDetection struct {
	RereadThreshold          float64 `yaml:"reread_threshold" env:"REREAD_DETECTION_REREAD_THRESHOLD"`
	HighProgressThreshold    float64 `yaml:"high_progress_threshold" env:"REREAD_DETECTION_HIGH_PROGRESS_THRESHOLD"`
	RegressionBlockThreshold float64 `yaml:"regression_block_threshold" env:"REREAD_DETECTION_REGRESSION_BLOCK_THRESHOLD"`
	RegressionWarnThreshold  float64 `yaml:"regression_warn_threshold" env:"REREAD_DETECTION_REGRESSION_WARN_THRESHOLD"`
}

func (r RereadDetection) toThresholds() progress.RegressionThresholds {
	return progress.RegressionThresholds{
		HighProgressThreshold:    r.HighProgressThreshold,
		RereadThreshold:          r.RereadThreshold,
		RegressionBlockThreshold: r.RegressionBlockThreshold,
		RegressionWarnThreshold:  r.RegressionWarnThreshold,
	}
}

// TitleAuthorMatching mirrors `title_author_matching.*` keys.
type TitleAuthorMatching struct {
	Enabled bool `yaml:"enabled" env:"TITLE_AUTHOR_MATCHING_ENABLED"`
}

// DelayedUpdates mirrors `delayed_updates.*` keys, which feed
// directly into session.Config.
type DelayedUpdates struct {
	Enabled              bool `yaml:"enabled" env:"DELAYED_UPDATES_ENABLED"`
	SessionTimeout       int  `yaml:"session_timeout" env:"DELAYED_UPDATES_SESSION_TIMEOUT"`
	MaxDelay             int  `yaml:"max_delay" env:"DELAYED_UPDATES_MAX_DELAY"`
	ImmediateCompletion  bool `yaml:"immediate_completion" env:"DELAYED_UPDATES_IMMEDIATE_COMPLETION"`
}

func (d DelayedUpdates) toSessionConfig() session.Config {
	return session.Config{
		Enabled:             d.Enabled,
		SessionTimeout:      d.SessionTimeout,
		MaxDelay:            d.MaxDelay,
		ImmediateCompletion: d.ImmediateCompletion,
	}
}

// Libraries mirrors `libraries.{include,exclude}` keys.
type Libraries struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Config is the full recognized configuration surface.
type Config struct {
	MinProgressThreshold      float64 `yaml:"min_progress_threshold" env:"MIN_PROGRESS_THRESHOLD"`
	Parallel                  bool    `yaml:"parallel" env:"PARALLEL"`
	Workers                   int     `yaml:"workers" env:"WORKERS"`
	Timezone                  string  `yaml:"timezone" env:"TIMEZONE"`
	SyncSchedule              string  `yaml:"sync_schedule" env:"SYNC_SCHEDULE"`
	DryRun                    bool    `yaml:"dry_run" env:"DRY_RUN"`
	ForceSync                 bool    `yaml:"force_sync" env:"FORCE_SYNC"`
	AutoAddBooks              bool    `yaml:"auto_add_books" env:"AUTO_ADD_BOOKS"`
	PreventProgressRegression bool    `yaml:"prevent_progress_regression" env:"PREVENT_PROGRESS_REGRESSION"`
	HardcoverSemaphore        int     `yaml:"hardcover_semaphore" env:"HARDCOVER_SEMAPHORE"`
	HardcoverRateLimit        int     `yaml:"hardcover_rate_limit" env:"HARDCOVER_RATE_LIMIT"`
	AudiobookshelfSemaphore   int     `yaml:"audiobookshelf_semaphore" env:"AUDIOBOOKSHELF_SEMAPHORE"`
	AudiobookshelfRateLimit   int     `yaml:"audiobookshelf_rate_limit" env:"AUDIOBOOKSHELF_RATE_LIMIT"`
	PageSize                  int     `yaml:"page_size" env:"PAGE_SIZE"`
	MaxBooksToFetch           int     `yaml:"max_books_to_fetch" env:"MAX_BOOKS_TO_FETCH"`
	CachePath                 string  `yaml:"cache_path" env:"CACHE_PATH"`
	DeepScanInterval          int     `yaml:"deep_scan_interval" env:"DEEP_SCAN_INTERVAL"`

	RereadDetection     RereadDetection     `yaml:"reread_detection"`
	TitleAuthorMatching TitleAuthorMatching `yaml:"title_author_matching"`
	DelayedUpdates      DelayedUpdates      `yaml:"delayed_updates"`
	Libraries           Libraries           `yaml:"libraries"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Users []User `yaml:"users"`
}

// Default returns every documented default value.
func Default() *Config {
	c := &Config{
		MinProgressThreshold:      5.0,
		Parallel:                  true,
		Workers:                   3,
		Timezone:                  "UTC",
		SyncSchedule:              "0 3 * * *",
		DryRun:                    false,
		ForceSync:                 false,
		AutoAddBooks:              false,
		PreventProgressRegression: true,
		HardcoverSemaphore:        1,
		HardcoverRateLimit:        55,
		AudiobookshelfSemaphore:   5,
		AudiobookshelfRateLimit:   600,
		PageSize:                  100,
		MaxBooksToFetch:           0,
		CachePath:                 "data/.book_cache.db",
		DeepScanInterval:          10,
	}
	c.RereadDetection = RereadDetection{
		HighProgressThreshold:    85,
		RereadThreshold:          30,
		RegressionBlockThreshold: 50,
		RegressionWarnThreshold:  15,
	}
	c.TitleAuthorMatching = TitleAuthorMatching{Enabled: true}
	c.DelayedUpdates = DelayedUpdates{
		Enabled:             false,
		SessionTimeout:      900,
		MaxDelay:            3600,
		ImmediateCompletion: true,
	}
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	return c
}

// envPrefix is the mandatory prefix for every recognized environment
// variable.
const envPrefix = "SHELFBRIDGE_"

// Load applies environment variable overrides over the defaults, then
// reads path (if non-empty) as YAML over that, then validates. Any key
// the YAML file sets therefore takes precedence over the environment,
// which takes precedence over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg, false)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, shelferrors.Wrap(shelferrors.ConfigError, err, "config file %s not found", path)
			}
			return nil, shelferrors.Wrap(shelferrors.ConfigError, err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, shelferrors.Wrap(shelferrors.ConfigError, err, "parsing config file %s", path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills in fields from SHELFBRIDGE_-prefixed
// environment variables. With hadFile == false every variable that is
// set overrides its field; with hadFile == true only zero-valued fields
// are filled and bool fields are left alone. Load calls it with
// hadFile == false, before the YAML file is read.
func applyEnvOverrides(c *Config, hadFile bool) {
	setFloat(&c.MinProgressThreshold, "MIN_PROGRESS_THRESHOLD", hadFile)
	setBool(&c.Parallel, "PARALLEL", hadFile)
	setInt(&c.Workers, "WORKERS", hadFile)
	setString(&c.Timezone, "TIMEZONE", hadFile)
	setString(&c.SyncSchedule, "SYNC_SCHEDULE", hadFile)
	setBool(&c.DryRun, "DRY_RUN", hadFile)
	setBool(&c.ForceSync, "FORCE_SYNC", hadFile)
	setBool(&c.AutoAddBooks, "AUTO_ADD_BOOKS", hadFile)
	setBool(&c.PreventProgressRegression, "PREVENT_PROGRESS_REGRESSION", hadFile)
	setInt(&c.HardcoverSemaphore, "HARDCOVER_SEMAPHORE", hadFile)
	setInt(&c.HardcoverRateLimit, "HARDCOVER_RATE_LIMIT", hadFile)
	setInt(&c.AudiobookshelfSemaphore, "AUDIOBOOKSHELF_SEMAPHORE", hadFile)
	setInt(&c.AudiobookshelfRateLimit, "AUDIOBOOKSHELF_RATE_LIMIT", hadFile)
	setInt(&c.PageSize, "PAGE_SIZE", hadFile)
	setInt(&c.MaxBooksToFetch, "MAX_BOOKS_TO_FETCH", hadFile)
	setString(&c.CachePath, "CACHE_PATH", hadFile)
	setInt(&c.DeepScanInterval, "DEEP_SCAN_INTERVAL", hadFile)

	setFloat(&c.RereadDetection.RereadThreshold, "REREAD_DETECTION_REREAD_THRESHOLD", hadFile)
	setFloat(&c.RereadDetection.HighProgressThreshold, "REREAD_DETECTION_HIGH_PROGRESS_THRESHOLD", hadFile)
	setFloat(&c.RereadDetection.RegressionBlockThreshold, "REREAD_DETECTION_REGRESSION_BLOCK_THRESHOLD", hadFile)
	setFloat(&c.RereadDetection.RegressionWarnThreshold, "REREAD_DETECTION_REGRESSION_WARN_THRESHOLD", hadFile)

	setBool(&c.TitleAuthorMatching.Enabled, "TITLE_AUTHOR_MATCHING_ENABLED", hadFile)

	setBool(&c.DelayedUpdates.Enabled, "DELAYED_UPDATES_ENABLED", hadFile)
	setInt(&c.DelayedUpdates.SessionTimeout, "DELAYED_UPDATES_SESSION_TIMEOUT", hadFile)
	setInt(&c.DelayedUpdates.MaxDelay, "DELAYED_UPDATES_MAX_DELAY", hadFile)
	setBool(&c.DelayedUpdates.ImmediateCompletion, "DELAYED_UPDATES_IMMEDIATE_COMPLETION", hadFile)

	setString(&c.Logging.Level, "LOG_LEVEL", hadFile)
	setString(&c.Logging.Format, "LOG_FORMAT", hadFile)
}

func envVal(key string) (string, bool) {
	return os.LookupEnv(envPrefix + key)
}

func setString(dst *string, key string, hadFile bool) {
	if hadFile && *dst != "" {
		return
	}
	if v, ok := envVal(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string, hadFile bool) {
	if hadFile {
		return // a file-set bool is indistinguishable from its zero value; file wins outright
	}
	if v, ok := envVal(key); ok {
		*dst = parseBool(v)
	}
}

func setInt(dst *int, key string, hadFile bool) {
	if hadFile && *dst != 0 {
		return
	}
	if v, ok := envVal(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string, hadFile bool) {
	if hadFile && *dst != 0 {
		return
	}
	if v, ok := envVal(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

// parseBool accepts true/false/1/0, case-insensitive and trimmed.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// Validate enforces cross-field constraints not already covered by
// session.Config.Validate, and requires at least one user.
func (c *Config) Validate() error {
	if len(c.Users) == 0 {
		return shelferrors.New(shelferrors.ConfigError, "at least one entry in `users` is required")
	}
	for _, u := range c.Users {
		if u.ID == "" || u.ABSUrl == "" || u.ABSToken == "" || u.HardcoverToken == "" {
			return shelferrors.New(shelferrors.ConfigError, "user %q is missing a required field (id/abs_url/abs_token/hardcover_token)", u.ID)
		}
	}
	if c.Workers <= 0 {
		return shelferrors.New(shelferrors.ConfigError, "workers must be positive, got %d", c.Workers)
	}
	if c.DelayedUpdates.Enabled {
		if err := c.DelayedUpdates.toSessionConfig().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SessionConfig exposes delayed_updates in the shape the session package
// consumes.
func (c *Config) SessionConfig() session.Config {
	return c.DelayedUpdates.toSessionConfig()
}

// Thresholds exposes reread_detection in the shape the progress package
// consumes.
func (c *Config) Thresholds() progress.RegressionThresholds {
	return c.RereadDetection.toThresholds()
}
