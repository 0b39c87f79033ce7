package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StorageDir string `toml:"storage_dir"`
}

// KindPolicy holds the per-job-kind worker and retry settings.
type KindPolicy struct {
	PollInterval    int      `toml:"poll_interval"`
	BatchSize       int      `toml:"batch_size"`
	ExpectedRuntime int      `toml:"expected_runtime"`
	MaxRetries      int      `toml:"max_retries"`
	Backoff         []int    `toml:"backoff"`
	ExclusiveTarget bool     `toml:"exclusive_target"`
	Command         []string `toml:"command"`
	FatalExitCodes  []int    `toml:"fatal_exit_codes"`
}

// Workers contains the shared worker loop settings plus per-kind overrides.
type Workers struct {
	PollInterval       int                   `toml:"poll_interval"`
	PollJitter         float64               `toml:"poll_jitter"`
	ErrorRetryInterval int                   `toml:"error_retry_interval"`
	StaleMultiplier    int                   `toml:"stale_multiplier"`
	Kinds              map[string]KindPolicy `toml:"kinds"`
}

// Admission contains the storage admission thresholds.
type Admission struct {
	Enabled               bool     `toml:"enabled"`
	CleanupTriggerPercent float64  `toml:"cleanup_trigger_percent"`
	PauseTriggerPercent   float64  `toml:"pause_trigger_percent"`
	SafetyMarginGiB       float64  `toml:"safety_margin_gib"`
	CheckInterval         int      `toml:"check_interval"`
	GatedKinds            []string `toml:"gated_kinds"`
}

// Cleanup contains settings for the built-in cleanup executor.
type Cleanup struct {
	MaxDeletions int `toml:"max_deletions"`
}

// Discovery contains the discovery trigger settings.
type Discovery struct {
	CycleDays []int    `toml:"cycle_days"`
	Wikis     []string `toml:"wikis"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Quarantine     bool   `toml:"quarantine"`
	Admission      bool   `toml:"admission"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string            `toml:"format"`
	Level         string            `toml:"level"`
	RetentionDays int               `toml:"retention_days"`
	KindOverrides map[string]string `toml:"kind_overrides"`
}

// Config encapsulates all configuration values for WikiSeed.
//
// Configuration sections by subsystem:
//   - Paths: database, log, and resource storage directories
//   - Workers: poll cadence, jitter, stale-claim multiplier, per-kind policy
//   - Admission: storage bands gating space-consuming kinds
//   - Cleanup: limits for the built-in cleanup executor
//   - Discovery: cycle days and the wiki list passed to discover jobs
//   - Notifications: ntfy alerting for quarantine and paused admission
//   - Logging: log format, level, retention, and per-kind level overrides
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workers       Workers       `toml:"workers"`
	Admission     Admission     `toml:"admission"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Discovery     Discovery     `toml:"discovery"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("wikiseed.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
// StorageDir is created on a best-effort basis so read-only commands work
// while the storage volume is unmounted.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.StorageDir) != "" {
		_ = os.MkdirAll(c.Paths.StorageDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the SQLite store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "wikiseed.db")
}

// CleanupLockPath returns the host-wide lock file guarding cleanup runs.
func (c *Config) CleanupLockPath() string {
	return filepath.Join(c.Paths.DataDir, "cleanup.lock")
}

// Kind returns the merged policy for a job kind. Unknown kinds receive the
// shared worker defaults.
func (c *Config) Kind(kind string) KindPolicy {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if policy, ok := c.Workers.Kinds[kind]; ok {
		return policy
	}
	return c.fillKind(KindPolicy{})
}

// KindNames returns the configured job kinds in sorted order.
func (c *Config) KindNames() []string {
	names := make([]string, 0, len(c.Workers.Kinds))
	for name := range c.Workers.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PollInterval returns the un-jittered poll interval for a kind.
func (c *Config) PollInterval(kind string) time.Duration {
	return time.Duration(c.Kind(kind).PollInterval) * time.Second
}

// ExpectedRuntime returns the expected execution time for a kind.
func (c *Config) ExpectedRuntime(kind string) time.Duration {
	return time.Duration(c.Kind(kind).ExpectedRuntime) * time.Second
}

// StaleClaimThreshold returns how long a claim may sit in claimed/running
// before any worker may reclaim it.
func (c *Config) StaleClaimThreshold(kind string) time.Duration {
	return time.Duration(c.Workers.StaleMultiplier) * c.ExpectedRuntime(kind)
}

// BackoffSchedule returns the retry delays for a kind.
func (c *Config) BackoffSchedule(kind string) []time.Duration {
	seconds := c.Kind(kind).Backoff
	out := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// SafetyMarginBytes converts the absolute free-space floor into bytes.
func (c *Config) SafetyMarginBytes() uint64 {
	if c.Admission.SafetyMarginGiB <= 0 {
		return 0
	}
	return uint64(c.Admission.SafetyMarginGiB * 1024 * 1024 * 1024)
}

// IsGatedKind reports whether admission control gates claims for the kind.
func (c *Config) IsGatedKind(kind string) bool {
	if !c.Admission.Enabled {
		return false
	}
	for _, gated := range c.Admission.GatedKinds {
		if strings.EqualFold(gated, kind) {
			return true
		}
	}
	return false
}

// AdmissionInverted reports whether the cleanup trigger sits at or above the
// pause trigger, which leaves the cleanup band empty.
func (c *Config) AdmissionInverted() bool {
	return c.Admission.CleanupTriggerPercent >= c.Admission.PauseTriggerPercent
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
