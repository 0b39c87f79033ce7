package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wikiseed/internal/config"
	"wikiseed/internal/database"
	"wikiseed/internal/queue"
	"wikiseed/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("wikiseed %s: %v (stderr %q)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func openStore(t *testing.T, cfg *config.Config) *queue.Store {
	t.Helper()
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return queue.New(db, queue.WithConfig(cfg))
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out := mustRun(t, env, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out = mustRun(t, env, "config", "show")
	requireContains(t, out, "# source: "+env.configPath)
	requireContains(t, out, env.cfg.Paths.DataDir)
}

func TestEnqueueAndQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRun(t, env, "enqueue", "--kind", "fetch", "--target", "enwiki/2026-11-01", "--group", "2026-11-01",
		"--params", `{"url":"https://dumps.example/enwiki.xml.bz2"}`)
	requireContains(t, out, "Enqueued fetch job #1")
	mustRun(t, env, "enqueue", "--kind", "bundle", "--target", "2026-11-01", "--group", "2026-11-01", "--barrier")

	out = mustRun(t, env, "queue", "list")
	requireContains(t, out, "enwiki/2026-11-01")
	requireContains(t, out, "(barrier)")

	out = mustRun(t, env, "queue", "show", "2")
	requireContains(t, out, "Waiting on:")
	requireContains(t, out, "#1 fetch (pending)")

	out = mustRun(t, env, "queue", "status")
	requireContains(t, out, "Fetch")
	requireContains(t, out, "2 total")

	out = mustRun(t, env, "queue", "pending", "--kind", "fetch")
	requireContains(t, out, "enwiki/2026-11-01")

	out = mustRun(t, env, "queue", "fail", "1", "--reason", "mirror offline")
	requireContains(t, out, "Parked job #1")
	out = mustRun(t, env, "--json", "queue", "list", "--status", "failed")
	var parked []queue.Job
	if err := json.Unmarshal([]byte(out), &parked); err != nil {
		t.Fatalf("decode json list: %v", err)
	}
	if len(parked) != 1 || parked[0].LastError != "mirror offline" {
		t.Fatalf("unexpected parked jobs: %+v", parked)
	}

	out = mustRun(t, env, "queue", "requeue", "1")
	requireContains(t, out, "Requeued 1 of 1")

	if _, _, err := runCLI(t, []string{"enqueue", "--kind", "encode"}, env.configPath); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
	if _, _, err := runCLI(t, []string{"enqueue", "--kind", "fetch", "--params", "[1]"}, env.configPath); err == nil {
		t.Fatal("expected non-object params to be rejected")
	}
}

func TestTriggerAndClaim(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRun(t, env, "trigger", "--cycle", "2026-11-01", "--wikis", "enwiki,dewiki")
	requireContains(t, out, "Triggered cycle 2026-11-01")
	if _, _, err := runCLI(t, []string{"trigger", "--cycle", "2026-11-01"}, env.configPath); err == nil {
		t.Fatal("expected duplicate trigger to fail")
	}

	out = mustRun(t, env, "claim", "--kind", "bundle")
	requireContains(t, out, "No eligible bundle jobs")
	out = mustRun(t, env, "claim", "--kind", "discover", "--owner", "tester")
	requireContains(t, out, "Claimed as tester")

	out = mustRun(t, env, "queue", "reclaim", "--kind", "discover", "--older-than", "1ns")
	requireContains(t, out, "Discover")

	job := testsupport.MustGet(t, openStore(t, env.cfg), 1)
	if job.Status != queue.StatusPending || job.AttemptCount != 1 {
		t.Fatalf("expected reclaimed discover job, got %+v", job)
	}
}

func TestClaimRefusesGatedKindWhilePaused(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Admission.Enabled = true
	env.cfg.Admission.GatedKinds = []string{config.KindFetch}
	env.cfg.Admission.SafetyMarginGiB = 1e9
	writeTestConfig(t, env.configPath, env.cfg)

	mustRun(t, env, "enqueue", "--kind", "fetch", "--target", "enwiki")

	_, _, err := runCLI(t, []string{"claim", "--kind", "fetch", "--owner", "tester"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected paused admission to refuse the claim, got %v", err)
	}
	store := openStore(t, env.cfg)
	fetches, err := store.List(context.Background(), queue.Filter{Kinds: []queue.Kind{queue.KindFetch}})
	if err != nil || len(fetches) != 1 {
		t.Fatalf("List fetch jobs: %v (%d)", err, len(fetches))
	}
	if fetches[0].Status != queue.StatusPending || fetches[0].Owner != "" {
		t.Fatalf("expected fetch job left pending, got %+v", fetches[0])
	}
	cleanups, err := store.List(context.Background(), queue.Filter{Kinds: []queue.Kind{queue.KindCleanup}})
	if err != nil || len(cleanups) != 1 {
		t.Fatalf("expected the refused claim to schedule cleanup, got %d (%v)", len(cleanups), err)
	}

	out := mustRun(t, env, "claim", "--kind", "fetch", "--owner", "tester", "--force")
	requireContains(t, out, "Claimed as tester")
}

func TestResourceAndBundleCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	for i, name := range []string{"a1", "a2"} {
		path := filepath.Join(env.cfg.Paths.StorageDir, name)
		testsupport.WriteFile(t, path, 4096)
		out := mustRun(t, env, "resources", "register", "--path", path, "--group", "enwiki/2026-11-01", "--size", "4096")
		requireContains(t, out, "Registered resource #"+string(rune('1'+i)))
	}

	out := mustRun(t, env, "resources", "list")
	requireContains(t, out, "4.0 KiB")

	out = mustRun(t, env, "bundles", "create", "cycle-2026-11-01", "--class", "cycle")
	requireContains(t, out, "Bundle #1 cycle-2026-11-01 (open)")
	out = mustRun(t, env, "bundles", "link", "1", "1")
	requireContains(t, out, "Resource #1 linked with bundle #1")
	out = mustRun(t, env, "bundles", "link", "1", "1")
	requireContains(t, out, "No change")
	mustRun(t, env, "bundles", "seal", "1", "--artifact", "/srv/cycle.torrent")

	out = mustRun(t, env, "bundles", "members", "1")
	requireContains(t, out, "a1")
	out = mustRun(t, env, "bundles", "list")
	requireContains(t, out, "Built")

	out = mustRun(t, env, "resources", "can-delete", "1")
	requireContains(t, out, "deletable: no")
	if _, _, err := runCLI(t, []string{"resources", "delete", "1"}, env.configPath); err == nil {
		t.Fatal("expected referenced resource delete to fail")
	}

	out = mustRun(t, env, "resources", "candidates")
	requireContains(t, out, "a2")
	out = mustRun(t, env, "resources", "can-delete", "2")
	requireContains(t, out, "deletable: yes")
	out = mustRun(t, env, "resources", "delete", "2")
	requireContains(t, out, "Deleted resource #2")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.StorageDir, "a2")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
}

func TestDBHealthAndAdmissionStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRun(t, env, "db", "health")
	requireContains(t, out, "[OK]")
	requireContains(t, out, env.cfg.DatabasePath())

	out = mustRun(t, env, "admission", "status")
	requireContains(t, out, "Band:")
	requireContains(t, out, "never evaluated by a worker")
}

func TestDoctorReportsMissingBinaries(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRun(t, env, "doctor")
	requireContains(t, out, "Storage directory")
	requireContains(t, out, "read/write ok")

	policy := env.cfg.Workers.Kinds[config.KindFetch]
	policy.Command = []string{"clearly-not-present-binary"}
	env.cfg.Workers.Kinds[config.KindFetch] = policy
	writeTestConfig(t, env.configPath, env.cfg)

	stdout, _, err := runCLI(t, []string{"--json", "doctor"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "1 required check") {
		t.Fatalf("expected failing doctor run, got %v", err)
	}
	requireContains(t, stdout, `"name": "fetch command"`)

	if _, _, err := runCLI(t, []string{"doctor", "--kind", "archive"}, env.configPath); err != nil {
		t.Fatalf("expected unselected kind to be optional, got %v", err)
	}
}

func TestRunWorkerProcessesCommandJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg := env.cfg
	policy := cfg.Workers.Kinds[config.KindArchive]
	policy.Command = []string{"sh", "-c", `cat >/dev/null; echo '{"result":{"archived":true}}'`}
	policy.PollInterval = 1
	cfg.Workers.Kinds[config.KindArchive] = policy

	store := openStore(t, cfg)
	id := testsupport.MustEnqueue(t, store, queue.NewJob{Kind: queue.KindArchive, Target: "enwiki"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runWorker(ctx, cfg, []string{"archive"}, "worker-cli") }()

	deadline := time.Now().Add(10 * time.Second)
	for testsupport.MustGet(t, store, id).Status != queue.StatusCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("archive job never completed: %+v", testsupport.MustGet(t, store, id))
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runWorker: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
	if job := testsupport.MustGet(t, store, id); job.Result["archived"] != true {
		t.Fatalf("unexpected result: %v", job.Result)
	}
}

func TestRunWorkerRequiresRunnableKinds(t *testing.T) {
	env := setupCLITestEnv(t)
	err := runWorker(context.Background(), env.cfg, []string{"fetch"}, "")
	if err == nil || !strings.Contains(err.Error(), "command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
}
