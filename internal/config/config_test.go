package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wikiseed/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("WIKISEED_NTFY_TOPIC", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "wikiseed")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "wikiseed.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Admission.CleanupTriggerPercent != 85 || cfg.Admission.PauseTriggerPercent != 90 {
		t.Fatalf("unexpected admission thresholds: %+v", cfg.Admission)
	}
	if !cfg.IsGatedKind("fetch") {
		t.Fatal("expected fetch to be gated by default")
	}
	if cfg.IsGatedKind("bundle") {
		t.Fatal("expected bundle to be ungated by default")
	}
	for _, kind := range config.KnownKinds {
		if _, ok := cfg.Workers.Kinds[kind]; !ok {
			t.Fatalf("expected default policy for kind %q", kind)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.StorageDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestDefaultBackoffSchedule(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	got := cfg.BackoffSchedule("fetch")
	want := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour}
	if len(got) != len(want) {
		t.Fatalf("unexpected schedule length: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("schedule[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if threshold := cfg.StaleClaimThreshold("fetch"); threshold != 6*time.Hour {
		t.Fatalf("expected stale threshold of 6x expected runtime, got %s", threshold)
	}
}

func TestLoadCustomPathMergesKindPolicy(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "wikiseed.toml")

	type kindPayload struct {
		MaxRetries int      `toml:"max_retries"`
		Command    []string `toml:"command"`
	}
	type payload struct {
		Paths struct {
			DataDir    string `toml:"data_dir"`
			StorageDir string `toml:"storage_dir"`
		} `toml:"paths"`
		Workers struct {
			Kinds map[string]kindPayload `toml:"kinds"`
		} `toml:"workers"`
		Admission struct {
			Enabled               bool    `toml:"enabled"`
			CleanupTriggerPercent float64 `toml:"cleanup_trigger_percent"`
			PauseTriggerPercent   float64 `toml:"pause_trigger_percent"`
		} `toml:"admission"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Paths.StorageDir = filepath.Join(tempDir, "storage")
	custom.Workers.Kinds = map[string]kindPayload{
		"fetch": {MaxRetries: 2, Command: []string{"fetcher", " --verbose "}},
	}
	custom.Admission.Enabled = true
	custom.Admission.CleanupTriggerPercent = 92
	custom.Admission.PauseTriggerPercent = 90
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	fetch := cfg.Kind("fetch")
	if fetch.MaxRetries != 2 {
		t.Fatalf("expected max_retries override, got %d", fetch.MaxRetries)
	}
	if fetch.ExpectedRuntime != 3600 {
		t.Fatalf("expected built-in expected runtime to survive override, got %d", fetch.ExpectedRuntime)
	}
	if !fetch.ExclusiveTarget {
		t.Fatal("expected fetch to keep exclusive target")
	}
	if strings.Join(fetch.Command, "|") != "fetcher|--verbose" {
		t.Fatalf("unexpected command: %q", fetch.Command)
	}
	if len(fetch.Backoff) != 4 {
		t.Fatalf("expected default backoff, got %v", fetch.Backoff)
	}
	if !cfg.AdmissionInverted() {
		t.Fatal("expected inverted admission thresholds to be reported")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "wikiseed.toml")
	content := "[paths]\ndata_dir = \"" + filepath.ToSlash(filepath.Join(tempDir, "data")) + "\"\n\n[workers.kinds.encode]\nmax_retries = 3\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
	if !strings.Contains(err.Error(), "unknown job kind") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsDecreasingBackoff(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "wikiseed.toml")
	content := "[workers.kinds.fetch]\nbackoff = [600, 300]\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected decreasing backoff to be rejected")
	}
	if !strings.Contains(err.Error(), "non-decreasing") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvTopicFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WIKISEED_NTFY_TOPIC", " https://ntfy.example/wikiseed ")
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/wikiseed" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if got := cfg.Kind("fetch").Command; len(got) != 1 || got[0] != "wikiseed-fetch" {
		t.Fatalf("unexpected sample fetch command: %v", got)
	}
}
