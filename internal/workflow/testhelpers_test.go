package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wikiseed/internal/admission"
	"wikiseed/internal/config"
	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
	"wikiseed/internal/stage"
	"wikiseed/internal/testsupport"
	"wikiseed/internal/workflow"
)

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	manager *workflow.Manager
}

func newHarness(t *testing.T, cfg *config.Config, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	store := testsupport.MustOpenQueue(t, cfg)
	opts = append([]workflow.ManagerOption{
		workflow.WithPollInterval(5 * time.Millisecond),
		workflow.WithWorkerID("worker-test"),
	}, opts...)
	return &harness{
		cfg:     cfg,
		store:   store,
		manager: workflow.NewManager(cfg, store, logging.NewNop(), opts...),
	}
}

func (h *harness) register(t *testing.T, kind queue.Kind, fn stage.HandlerFunc) {
	t.Helper()
	if err := h.manager.Register(kind, fn); err != nil {
		t.Fatalf("Register(%s): %v", kind, err)
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

// waitForJob polls until cond holds for the job or the deadline passes.
func (h *harness) waitForJob(t *testing.T, id int64, cond func(*queue.Job) bool) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job := testsupport.MustGet(t, h.store, id)
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %d never reached expected state; last: status=%s attempts=%d err=%q",
				id, job.Status, job.AttemptCount, job.LastError)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasStatus(status queue.Status) func(*queue.Job) bool {
	return func(job *queue.Job) bool { return job.Status == status }
}

func attempted(n int) func(*queue.Job) bool {
	return func(job *queue.Job) bool { return job.AttemptCount == n }
}

// fakeGate scripts admission decisions and an optional watchdog cause.
type fakeGate struct {
	allowed atomic.Bool
	mu      sync.Mutex
	cause   error
	evals   atomic.Int32
}

func (g *fakeGate) Evaluate(context.Context) (bool, admission.Band, error) {
	g.evals.Add(1)
	if g.allowed.Load() {
		return true, admission.BandNormal, nil
	}
	return false, admission.BandPaused, nil
}

func (g *fakeGate) Watch(ctx context.Context, cancel context.CancelCauseFunc) {
	g.mu.Lock()
	cause := g.cause
	g.mu.Unlock()
	if cause != nil {
		cancel(cause)
		return
	}
	<-ctx.Done()
}
