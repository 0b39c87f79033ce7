package stage_test

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"wikiseed/internal/config"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
	"wikiseed/internal/stage"
)

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status" }
func (e exitError) ExitCode() int { return e.code }

type fakeExecutor struct {
	stdout []byte
	stderr []byte
	err    error
	last   stage.Invocation
}

func (f *fakeExecutor) Run(_ context.Context, inv stage.Invocation) ([]byte, []byte, error) {
	f.last = inv
	return f.stdout, f.stderr, f.err
}

func fetchPolicy() config.KindPolicy {
	return config.KindPolicy{Command: []string{"wikiseed-fetch", "--verbose"}, FatalExitCodes: []int{65, 66}}
}

func newHandler(t *testing.T, exec *fakeExecutor) *stage.CommandHandler {
	t.Helper()
	h, err := stage.NewCommandHandler(queue.KindFetch, fetchPolicy(), stage.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandHandler: %v", err)
	}
	return h
}

func sampleJob() *queue.Job {
	return &queue.Job{ID: 9, Kind: queue.KindFetch, Target: "enwiki/2026-11-01", GroupKey: "2026-11-01", AttemptCount: 1}
}

func TestCommandHandlerDecodesResultAndFollowUps(t *testing.T) {
	exec := &fakeExecutor{stdout: []byte(`{"result":{"local_path":"/data/enwiki.xml.bz2"},"enqueue":[{"kind":"Archive","target":"enwiki"}]}`)}
	h := newHandler(t, exec)

	ctx := services.WithRequestID(context.Background(), "req-1")
	result, err := h.Execute(ctx, sampleJob())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Payload["local_path"] != "/data/enwiki.xml.bz2" {
		t.Fatalf("unexpected payload: %v", result.Payload)
	}
	if len(result.FollowUps) != 1 || result.FollowUps[0].Kind != queue.KindArchive || result.FollowUps[0].Target != "enwiki" {
		t.Fatalf("unexpected follow-ups: %+v", result.FollowUps)
	}

	if exec.last.Binary != "wikiseed-fetch" || strings.Join(exec.last.Args, " ") != "--verbose" {
		t.Fatalf("unexpected invocation: %+v", exec.last)
	}
	var sent queue.Job
	if err := json.Unmarshal(exec.last.Stdin, &sent); err != nil {
		t.Fatalf("stdin is not a job document: %v", err)
	}
	if sent.ID != 9 || sent.Target != "enwiki/2026-11-01" {
		t.Fatalf("unexpected stdin job: %+v", sent)
	}
	env := strings.Join(exec.last.Env, "\n")
	for _, want := range []string{"WIKISEED_JOB_ID=9", "WIKISEED_JOB_ATTEMPT=2", "WIKISEED_CORRELATION_ID=req-1"} {
		if !strings.Contains(env, want) {
			t.Fatalf("expected %q in env %q", want, env)
		}
	}
}

func TestCommandHandlerEmptyOutputSucceeds(t *testing.T) {
	h := newHandler(t, &fakeExecutor{stdout: []byte("  \n")})
	result, err := h.Execute(context.Background(), sampleJob())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Payload != nil || result.FollowUps != nil {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestCommandHandlerClassifiesExitCodes(t *testing.T) {
	cases := []struct {
		name string
		code int
		want services.Class
	}{
		{"fatal code", 65, services.ClassFatal},
		{"other fatal code", 66, services.ClassFatal},
		{"transient code", 1, services.ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(t, &fakeExecutor{err: exitError{code: tc.code}, stderr: []byte("checksum mismatch\n")})
			_, err := h.Execute(context.Background(), sampleJob())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.Classify(err); got != tc.want {
				t.Fatalf("Classify = %s, want %s (%v)", got, tc.want, err)
			}
			if !strings.Contains(err.Error(), "checksum mismatch") {
				t.Fatalf("expected stderr detail in %q", err)
			}
		})
	}
}

func TestCommandHandlerRejectsMalformedOutput(t *testing.T) {
	for _, stdout := range []string{`{"result":`, `{"enqueue":[{"kind":"encode"}]}`} {
		h := newHandler(t, &fakeExecutor{stdout: []byte(stdout)})
		_, err := h.Execute(context.Background(), sampleJob())
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", stdout, err)
		}
	}
}

func TestCommandHandlerReportsCancellationCause(t *testing.T) {
	cause := errors.New("safety margin")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	h := newHandler(t, &fakeExecutor{err: exitError{code: -1}})
	_, err := h.Execute(ctx, sampleJob())
	if !errors.Is(err, cause) {
		t.Fatalf("expected cancellation cause, got %v", err)
	}
}

func TestNewCommandHandlerRequiresCommand(t *testing.T) {
	_, err := stage.NewCommandHandler(queue.KindBundle, config.KindPolicy{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCommandHandlerHealthCheck(t *testing.T) {
	missing := func(string) (string, error) { return "", exec.ErrNotFound }
	h, err := stage.NewCommandHandler(queue.KindFetch, fetchPolicy(), stage.WithLookPath(missing))
	if err != nil {
		t.Fatalf("NewCommandHandler: %v", err)
	}
	health := h.HealthCheck(context.Background())
	if health.Ready || health.Name != "fetch" || !strings.Contains(health.Detail, "wikiseed-fetch") {
		t.Fatalf("unexpected health: %+v", health)
	}

	found := func(string) (string, error) { return "/usr/bin/wikiseed-fetch", nil }
	h, _ = stage.NewCommandHandler(queue.KindFetch, fetchPolicy(), stage.WithLookPath(found))
	if !h.HealthCheck(context.Background()).Ready {
		t.Fatal("expected ready handler")
	}
}

func TestCommandHandlerRunsRealProcess(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	policy := config.KindPolicy{
		Command:        []string{"sh", "-c", `cat >/dev/null; printf '{"result":{"attempt":"%s"}}' "$WIKISEED_JOB_ATTEMPT"`},
		FatalExitCodes: []int{65},
	}
	h, err := stage.NewCommandHandler(queue.KindDistribute, policy)
	if err != nil {
		t.Fatalf("NewCommandHandler: %v", err)
	}
	result, err := h.Execute(context.Background(), &queue.Job{ID: 1, Kind: queue.KindDistribute})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Payload["attempt"] != "1" {
		t.Fatalf("unexpected payload: %v", result.Payload)
	}

	policy.Command = []string{"sh", "-c", "echo nope >&2; exit 65"}
	h, _ = stage.NewCommandHandler(queue.KindDistribute, policy)
	_, err = h.Execute(context.Background(), &queue.Job{ID: 2, Kind: queue.KindDistribute})
	if services.Classify(err) != services.ClassFatal || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected fatal exit with stderr, got %v", err)
	}
}

func TestHandlerFuncIsHealthy(t *testing.T) {
	called := false
	h := stage.HandlerFunc(func(context.Context, *queue.Job) (stage.Result, error) {
		called = true
		return stage.Result{Payload: map[string]any{"ok": true}}, nil
	})
	if _, err := h.Execute(context.Background(), sampleJob()); err != nil || !called {
		t.Fatalf("expected func invoked, err=%v", err)
	}
	if !h.HealthCheck(context.Background()).Ready {
		t.Fatal("expected func handler ready")
	}
}
