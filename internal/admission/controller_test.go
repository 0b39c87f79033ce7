package admission_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wikiseed/internal/admission"
	"wikiseed/internal/config"
	"wikiseed/internal/database"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
	"wikiseed/internal/testsupport"
)

const gib = uint64(1024 * 1024 * 1024)

// fakeVolume is a 100 GiB volume whose used percentage tests can move.
type fakeVolume struct {
	free atomic.Uint64
	fail atomic.Bool
}

func newVolume(usedPercent float64) *fakeVolume {
	v := &fakeVolume{}
	v.setUsed(usedPercent)
	return v
}

func (v *fakeVolume) setUsed(percent float64) {
	v.free.Store(uint64(float64(100*gib) * (100 - percent) / 100))
}

func (v *fakeVolume) probe(string) (uint64, uint64, error) {
	if v.fail.Load() {
		return 0, 0, errors.New("device gone")
	}
	return 100 * gib, v.free.Load(), nil
}

func newController(t *testing.T, cfg *config.Config, store *queue.Store, notifier notifications.Service, vol *fakeVolume) *admission.Controller {
	t.Helper()
	return admission.New(cfg, store.DB(), store, notifier, logging.NewNop(), admission.WithProbe(vol.probe))
}

func cleanupJobs(t *testing.T, store *queue.Store) []*queue.Job {
	t.Helper()
	jobs, err := store.List(context.Background(), queue.Filter{Kinds: []queue.Kind{queue.KindCleanup}})
	if err != nil {
		t.Fatalf("List cleanup jobs: %v", err)
	}
	return jobs
}

func TestClassifyBands(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	inverted := testsupport.NewConfig(t, testsupport.WithAdmission(92, 90, 0))

	cases := []struct {
		name string
		cfg  *config.Config
		used float64
		free uint64
		want admission.Band
	}{
		{"normal", cfg, 50, 50 * gib, admission.BandNormal},
		{"cleanup at trigger", cfg, 85, 15 * gib, admission.BandCleanupActive},
		{"cleanup below pause", cfg, 89.9, 10 * gib, admission.BandCleanupActive},
		{"paused at trigger", cfg, 90, 10 * gib, admission.BandPaused},
		{"margin forces pause", cfg, 10, gib / 2, admission.BandPaused},
		{"inverted between triggers", inverted, 91, 9 * gib, admission.BandPaused},
		{"inverted below pause", inverted, 89, 11 * gib, admission.BandNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := admission.Classify(tc.cfg, admission.Usage{UsedPercent: tc.used, FreeBytes: tc.free})
			if got != tc.want {
				t.Fatalf("Classify(%.1f%%) = %s, want %s", tc.used, got, tc.want)
			}
		})
	}
}

func TestEvaluateEnqueuesSingleCleanupJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	store := testsupport.MustOpenQueue(t, cfg)
	vol := newVolume(87)
	ctrl := newController(t, cfg, store, nil, vol)

	for i := 0; i < 3; i++ {
		allowed, band, err := ctrl.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !allowed || band != admission.BandCleanupActive {
			t.Fatalf("expected claims allowed in cleanup band, got allowed=%v band=%s", allowed, band)
		}
	}

	jobs := cleanupJobs(t, store)
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one cleanup job, got %d", len(jobs))
	}
	if jobs[0].Target != admission.CleanupTarget || jobs[0].Status != queue.StatusPending {
		t.Fatalf("unexpected cleanup job: %+v", jobs[0])
	}

	last, ok, err := ctrl.LastBand(context.Background())
	if err != nil || !ok || last != admission.BandCleanupActive {
		t.Fatalf("expected recorded cleanup band, got %s ok=%v err=%v", last, ok, err)
	}
}

func TestEvaluateNormalBandLeavesQueueAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	store := testsupport.MustOpenQueue(t, cfg)
	ctrl := newController(t, cfg, store, nil, newVolume(40))

	allowed, band, err := ctrl.Evaluate(context.Background())
	if err != nil || !allowed || band != admission.BandNormal {
		t.Fatalf("expected normal admission, got allowed=%v band=%s err=%v", allowed, band, err)
	}
	if jobs := cleanupJobs(t, store); len(jobs) != 0 {
		t.Fatalf("expected no cleanup job, got %d", len(jobs))
	}
}

func TestEvaluatePausedAlertsOnceAcrossWorkers(t *testing.T) {
	var alerts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerts.Add(1)
		if r.Header.Get("Title") != "WikiSeed - Storage Paused" {
			t.Errorf("unexpected alert title %q", r.Header.Get("Title"))
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1), testsupport.WithNtfyTopic(server.URL))
	store := testsupport.MustOpenQueue(t, cfg)
	notifier := notifications.NewService(cfg)
	vol := newVolume(95)
	first := newController(t, cfg, store, notifier, vol)
	second := newController(t, cfg, store, notifier, vol)

	for _, ctrl := range []*admission.Controller{first, second, first} {
		allowed, band, err := ctrl.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if allowed || band != admission.BandPaused {
			t.Fatalf("expected paused admission, got allowed=%v band=%s", allowed, band)
		}
	}
	if got := alerts.Load(); got != 1 {
		t.Fatalf("expected one paused alert, got %d", got)
	}
	if jobs := cleanupJobs(t, store); len(jobs) != 1 {
		t.Fatalf("expected paused band to keep one cleanup job, got %d", len(jobs))
	}

	vol.setUsed(50)
	if allowed, band, err := second.Evaluate(context.Background()); err != nil || !allowed || band != admission.BandNormal {
		t.Fatalf("expected resume, got allowed=%v band=%s err=%v", allowed, band, err)
	}

	vol.setUsed(96)
	if _, _, err := first.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := alerts.Load(); got != 2 {
		t.Fatalf("expected a second alert after re-entering paused, got %d", got)
	}
}

func TestEvaluateDisabledAlwaysAllows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Admission.Enabled = false
	store := testsupport.MustOpenQueue(t, cfg)
	ctrl := newController(t, cfg, store, nil, newVolume(99))

	allowed, band, err := ctrl.Evaluate(context.Background())
	if err != nil || !allowed || band != admission.BandNormal {
		t.Fatalf("expected disabled admission to allow, got allowed=%v band=%s err=%v", allowed, band, err)
	}
	if _, ok, _ := store.DB().State(context.Background(), database.StateAdmissionBand); ok {
		t.Fatal("expected disabled admission to leave system_state untouched")
	}
}

func TestEvaluateProbeFailureIsTransient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	store := testsupport.MustOpenQueue(t, cfg)
	vol := newVolume(10)
	vol.fail.Store(true)
	ctrl := newController(t, cfg, store, nil, vol)

	allowed, _, err := ctrl.Evaluate(context.Background())
	if err == nil || allowed {
		t.Fatalf("expected probe failure to block claims, got allowed=%v err=%v", allowed, err)
	}
	if services.Classify(err) != services.ClassTransient {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestWatchCancelsWhenMarginBreached(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	store := testsupport.MustOpenQueue(t, cfg)
	vol := newVolume(50)
	ctrl := admission.New(cfg, store.DB(), store, nil, logging.NewNop(),
		admission.WithProbe(vol.probe),
		admission.WithCheckInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	done := make(chan struct{})
	go func() {
		ctrl.Watch(ctx, cancel)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if ctx.Err() != nil {
		t.Fatal("expected watchdog to leave healthy job running")
	}
	vol.free.Store(gib / 4)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not cancel")
	}
	cause := context.Cause(ctx)
	if !errors.Is(cause, admission.ErrSafetyMargin) || !errors.Is(cause, services.ErrTransient) {
		t.Fatalf("expected transient safety margin cause, got %v", cause)
	}
}

func TestWatchReturnsWhenJobFinishes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(85, 90, 1))
	store := testsupport.MustOpenQueue(t, cfg)
	ctrl := admission.New(cfg, store.DB(), store, nil, logging.NewNop(),
		admission.WithProbe(newVolume(50).probe),
		admission.WithCheckInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Watch(ctx, cancel)
		close(done)
	}()
	cancel(nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not exit after job finished")
	}
	if !errors.Is(context.Cause(ctx), context.Canceled) {
		t.Fatalf("unexpected cause %v", context.Cause(ctx))
	}
}
