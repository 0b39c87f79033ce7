package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeAdmission()
	c.normalizeDiscovery()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = defaultPollInterval
	}
	if c.Workers.PollJitter < 0 {
		c.Workers.PollJitter = 0
	}
	if c.Workers.ErrorRetryInterval <= 0 {
		c.Workers.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workers.StaleMultiplier <= 0 {
		c.Workers.StaleMultiplier = defaultStaleMultiplier
	}

	// A decoded [workers.kinds.x] table replaces the default entry wholesale,
	// so unset fields are filled from the built-in policy for that kind.
	builtin := defaultKinds()
	merged := make(map[string]KindPolicy, len(builtin))
	for name, policy := range builtin {
		merged[name] = c.fillKind(policy)
	}
	for name, policy := range c.Workers.Kinds {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if base, ok := builtin[key]; ok {
			policy = overlayKind(base, policy)
		}
		merged[key] = c.fillKind(policy)
	}
	c.Workers.Kinds = merged
}

func overlayKind(base, override KindPolicy) KindPolicy {
	if override.PollInterval > 0 {
		base.PollInterval = override.PollInterval
	}
	if override.BatchSize > 0 {
		base.BatchSize = override.BatchSize
	}
	if override.ExpectedRuntime > 0 {
		base.ExpectedRuntime = override.ExpectedRuntime
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	if len(override.Backoff) > 0 {
		base.Backoff = override.Backoff
	}
	if override.ExclusiveTarget {
		base.ExclusiveTarget = true
	}
	if len(override.Command) > 0 {
		base.Command = override.Command
	}
	if len(override.FatalExitCodes) > 0 {
		base.FatalExitCodes = override.FatalExitCodes
	}
	return base
}

func (c *Config) fillKind(policy KindPolicy) KindPolicy {
	if policy.PollInterval <= 0 {
		policy.PollInterval = c.Workers.PollInterval
		if policy.PollInterval <= 0 {
			policy.PollInterval = defaultPollInterval
		}
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaultBatchSize
	}
	if policy.ExpectedRuntime <= 0 {
		policy.ExpectedRuntime = defaultExpectedRuntime
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = defaultMaxRetries
	}
	if len(policy.Backoff) == 0 {
		policy.Backoff = append([]int(nil), defaultBackoff...)
	}
	if len(policy.FatalExitCodes) == 0 {
		policy.FatalExitCodes = append([]int(nil), defaultFatalExitCodes...)
	}
	trimmed := policy.Command[:0:0]
	for _, arg := range policy.Command {
		if arg = strings.TrimSpace(arg); arg != "" {
			trimmed = append(trimmed, arg)
		}
	}
	policy.Command = trimmed
	return policy
}

func (c *Config) normalizeAdmission() {
	if c.Admission.CheckInterval <= 0 {
		c.Admission.CheckInterval = defaultAdmissionCheck
	}
	kinds := make([]string, 0, len(c.Admission.GatedKinds))
	seen := make(map[string]struct{}, len(c.Admission.GatedKinds))
	for _, kind := range c.Admission.GatedKinds {
		normalized := strings.ToLower(strings.TrimSpace(kind))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		kinds = append(kinds, normalized)
	}
	c.Admission.GatedKinds = kinds
}

func (c *Config) normalizeDiscovery() {
	days := make([]int, 0, len(c.Discovery.CycleDays))
	seen := make(map[int]struct{}, len(c.Discovery.CycleDays))
	for _, day := range c.Discovery.CycleDays {
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Ints(days)
	c.Discovery.CycleDays = days

	wikis := make([]string, 0, len(c.Discovery.Wikis))
	for _, wiki := range c.Discovery.Wikis {
		if wiki = strings.ToLower(strings.TrimSpace(wiki)); wiki != "" {
			wikis = append(wikis, wiki)
		}
	}
	c.Discovery.Wikis = wikis
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("WIKISEED_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.KindOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.KindOverrides))
		for kind, level := range c.Logging.KindOverrides {
			kind = strings.ToLower(strings.TrimSpace(kind))
			level = strings.ToLower(strings.TrimSpace(level))
			if kind == "" || level == "" {
				continue
			}
			overrides[kind] = level
		}
		c.Logging.KindOverrides = overrides
	}
}
