package testsupport

import (
	"path/filepath"
	"testing"

	"wikiseed/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StorageDir = filepath.Join(base, "storage")
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Workers.PollJitter = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithKindPolicy replaces the policy for one job kind.
func WithKindPolicy(kind string, mutate func(*config.KindPolicy)) ConfigOption {
	return func(b *configBuilder) {
		policy := b.cfg.Kind(kind)
		mutate(&policy)
		b.cfg.Workers.Kinds[kind] = policy
	}
}

// WithAdmission sets the admission thresholds on the test config.
func WithAdmission(cleanupPercent, pausePercent, marginGiB float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Admission.Enabled = true
		b.cfg.Admission.CleanupTriggerPercent = cleanupPercent
		b.cfg.Admission.PauseTriggerPercent = pausePercent
		b.cfg.Admission.SafetyMarginGiB = marginGiB
	}
}

// WithNtfyTopic points notifications at the provided endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
