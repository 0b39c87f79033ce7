package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wikiseed/internal/admission"
	"wikiseed/internal/config"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/queue"
	"wikiseed/internal/retry"
	"wikiseed/internal/stage"
)

// Gate is the admission surface lanes consult for gated kinds.
type Gate interface {
	Evaluate(ctx context.Context) (bool, admission.Band, error)
	Watch(ctx context.Context, cancel context.CancelCauseFunc)
}

// Hook runs after a successful execution and before the job is completed. A
// hook error fails the attempt, so hooks must be idempotent.
type Hook interface {
	AfterExecute(ctx context.Context, job *queue.Job, result stage.Result) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(context.Context, *queue.Job, stage.Result) error

// AfterExecute calls f.
func (f HookFunc) AfterExecute(ctx context.Context, job *queue.Job, result stage.Result) error {
	return f(ctx, job, result)
}

// Manager coordinates job processing across per-kind lanes.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	policy   *retry.Policy
	gate     Gate
	hooks    []Hook
	workerID string
	now      func() time.Time
	poll     time.Duration

	lanes     map[queue.Kind]*laneState
	laneOrder []queue.Kind

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the ntfy notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithGate enables admission control for gated kinds.
func WithGate(gate Gate) ManagerOption {
	return func(m *Manager) {
		m.gate = gate
	}
}

// WithHooks appends completion hooks.
func WithHooks(hooks ...Hook) ManagerOption {
	return func(m *Manager) {
		m.hooks = append(m.hooks, hooks...)
	}
}

// WithWorkerID sets the claim owner name. The default is host-unique.
func WithWorkerID(id string) ManagerOption {
	return func(m *Manager) {
		if id != "" {
			m.workerID = id
		}
	}
}

// WithClock overrides time.Now for backoff and stale cutoffs.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPollInterval overrides every lane's idle wait. Intended for tests.
func WithPollInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.poll = interval
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewService(cfg),
		policy:   retry.NewPolicy(cfg),
		workerID: "worker-" + uuid.NewString()[:8],
		now:      time.Now,
		lanes:    make(map[queue.Kind]*laneState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WorkerID returns the claim owner name used by every lane.
func (m *Manager) WorkerID() string {
	return m.workerID
}

// Register installs the handler for kind. Registering a kind twice replaces
// its handler.
func (m *Manager) Register(kind queue.Kind, handler stage.Handler) error {
	if handler == nil {
		return fmt.Errorf("register %s: nil handler", kind)
	}
	if _, err := queue.ParseKind(string(kind)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("register %s: workflow already running", kind)
	}
	if _, ok := m.lanes[kind]; !ok {
		m.laneOrder = append(m.laneOrder, kind)
	}
	m.lanes[kind] = m.newLane(kind, handler)
	return nil
}

// Kinds returns the registered kinds in registration order.
func (m *Manager) Kinds() []queue.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]queue.Kind(nil), m.laneOrder...)
}
