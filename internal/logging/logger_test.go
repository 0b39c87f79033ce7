package logging_test

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wikiseed/internal/config"
	"wikiseed/internal/logging"
	"wikiseed/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerRendersJobSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "workflow")
	logger.Info("job completed",
		logging.String(logging.FieldKind, "fetch"),
		logging.Int64(logging.FieldJobID, 12),
		logging.Uint64("freed_bytes", 3*1024*1024),
		logging.String(logging.FieldCorrelationID, "abc"),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO [workflow] Fetch · Job #12 – job completed") {
		t.Fatalf("expected subject header, got %q", content)
	}
	if !strings.Contains(content, "Freed: 3.0 MiB") {
		t.Fatalf("expected humanized bytes, got %q", content)
	}
	if strings.Contains(content, "abc") {
		t.Fatalf("expected correlation id hidden at info level, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerSuppressesRepeatedFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "repeat.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	job := logger.With(logging.Int64(logging.FieldJobID, 7))
	job.Info("claimed", logging.String("target", "enwiki"))
	job.Info("started", logging.String("target", "enwiki"))

	content := readLog(t, logPath)
	if got := strings.Count(content, "Target: enwiki"); got != 1 {
		t.Fatalf("expected repeated target once, got %d in %q", got, content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("admission paused", logging.Float64("used_percent", 93.5))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"
	cfg.Logging.KindOverrides = map[string]string{"fetch": "debug"}

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("root debug is filtered")
	logging.ForKind(logger, &cfg, "fetch").Debug("fetch debug is kept")
	logging.ForKind(logger, &cfg, "bundle").Debug("bundle debug is filtered")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	scanner := bufio.NewScanner(strings.NewReader(content))
	var messages []string
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log file line is not json: %q", scanner.Text())
		}
		messages = append(messages, entry["msg"].(string))
	}
	if len(messages) != 1 || messages[0] != "fetch debug is kept" {
		t.Fatalf("unexpected file messages: %v", messages)
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithJobID(context.Background(), 42)
	ctx = services.WithKind(ctx, "archive")
	ctx = services.WithWorkerID(ctx, "worker-1")
	ctx = services.WithRequestID(ctx, "req-9")

	logging.WithContext(ctx, logger).Info("executing")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry[logging.FieldJobID] != float64(42) || entry[logging.FieldKind] != "archive" ||
		entry[logging.FieldWorkerID] != "worker-1" || entry[logging.FieldCorrelationID] != "req-9" {
		t.Fatalf("missing context fields: %v", entry)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "store error", "store_error", logging.String(logging.FieldImpact, "poll skipped"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry[logging.FieldEventType] != "store_error" {
		t.Fatalf("expected event type, got %v", entry)
	}
	if entry[logging.FieldImpact] != "poll skipped" {
		t.Fatalf("expected caller impact preserved, got %v", entry[logging.FieldImpact])
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint, got %v", entry)
	}
}

func TestWithLevelOverrideRaisesMinimum(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	quiet := logging.WithLevelOverride(logger, slog.LevelWarn)
	quiet.Info("dropped")
	quiet.Warn("kept")

	content := readLog(t, logPath)
	if strings.Contains(content, "dropped") || !strings.Contains(content, "kept") {
		t.Fatalf("unexpected override output: %q", content)
	}
}

func TestCleanupOldLogsKeepsLiveFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	old := time.Now().AddDate(0, 0, -40)

	live := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	rotated := filepath.Join(cfg.Paths.LogDir, "wikiseed.log.1")
	recent := filepath.Join(cfg.Paths.LogDir, "wikiseed.log.2")
	for _, path := range []string{live, rotated, recent} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	for _, path := range []string{live, rotated} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 30, logging.ConfigRetentionTargets(&cfg)...)
	if removed != 1 {
		t.Fatalf("expected one pruned file, got %d", removed)
	}
	if _, err := os.Stat(rotated); !os.IsNotExist(err) {
		t.Fatalf("expected rotated log removed, stat err=%v", err)
	}
	for _, path := range []string{live, recent} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if logging.CleanupOldLogs(nil, 0, logging.ConfigRetentionTargets(&cfg)...) != 0 {
		t.Fatal("expected zero retention to disable pruning")
	}
}
