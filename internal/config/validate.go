package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"workers.poll_interval":        c.Workers.PollInterval,
		"workers.error_retry_interval": c.Workers.ErrorRetryInterval,
		"workers.stale_multiplier":     c.Workers.StaleMultiplier,
	}); err != nil {
		return err
	}
	if c.Workers.PollJitter < 0 || c.Workers.PollJitter >= 1 {
		return errors.New("workers.poll_jitter must be in [0, 1)")
	}
	for name, policy := range c.Workers.Kinds {
		if !isKnownKind(name) {
			return fmt.Errorf("workers.kinds.%s: unknown job kind (expected one of %s)", name, strings.Join(KnownKinds, ", "))
		}
		if err := ensurePositiveMap(map[string]int{
			"workers.kinds." + name + ".poll_interval":    policy.PollInterval,
			"workers.kinds." + name + ".batch_size":       policy.BatchSize,
			"workers.kinds." + name + ".expected_runtime": policy.ExpectedRuntime,
			"workers.kinds." + name + ".max_retries":      policy.MaxRetries,
		}); err != nil {
			return err
		}
		for i, delay := range policy.Backoff {
			if delay <= 0 {
				return fmt.Errorf("workers.kinds.%s.backoff[%d] must be positive", name, i)
			}
			if i > 0 && delay < policy.Backoff[i-1] {
				return fmt.Errorf("workers.kinds.%s.backoff must be non-decreasing", name)
			}
		}
	}
	return nil
}

func (c *Config) validateAdmission() error {
	if !c.Admission.Enabled {
		return nil
	}
	if c.Admission.CleanupTriggerPercent <= 0 || c.Admission.CleanupTriggerPercent > 100 {
		return errors.New("admission.cleanup_trigger_percent must be in (0, 100]")
	}
	if c.Admission.PauseTriggerPercent <= 0 || c.Admission.PauseTriggerPercent > 100 {
		return errors.New("admission.pause_trigger_percent must be in (0, 100]")
	}
	if c.Admission.SafetyMarginGiB < 0 {
		return errors.New("admission.safety_margin_gib must be >= 0")
	}
	for _, kind := range c.Admission.GatedKinds {
		if !isKnownKind(kind) {
			return fmt.Errorf("admission.gated_kinds: unknown job kind %q", kind)
		}
		if kind == KindCleanup {
			return errors.New("admission.gated_kinds must not include cleanup")
		}
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if len(c.Discovery.CycleDays) == 0 {
		return errors.New("discovery.cycle_days must include at least one day")
	}
	for _, day := range c.Discovery.CycleDays {
		if day < 1 || day > 28 {
			return fmt.Errorf("discovery.cycle_days: %d must be between 1 and 28", day)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for kind := range c.Logging.KindOverrides {
		if !isKnownKind(kind) {
			return fmt.Errorf("logging.kind_overrides: unknown job kind %q", kind)
		}
	}
	return nil
}

func isKnownKind(kind string) bool {
	for _, known := range KnownKinds {
		if known == kind {
			return true
		}
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
