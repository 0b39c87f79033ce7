package retry_test

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"wikiseed/internal/config"
	"wikiseed/internal/queue"
	"wikiseed/internal/retry"
	"wikiseed/internal/services"
	"wikiseed/internal/testsupport"
)

func TestDelayFollowsScheduleAndClamps(t *testing.T) {
	policy := retry.NewPolicy(testsupport.NewConfig(t))
	want := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour, 4 * time.Hour, 4 * time.Hour}
	var previous time.Duration
	for i, expected := range want {
		got := policy.Delay(queue.KindFetch, i+1)
		if got != expected {
			t.Fatalf("Delay(%d) = %s, want %s", i+1, got, expected)
		}
		if got < previous {
			t.Fatalf("backoff decreased at attempt %d", i+1)
		}
		previous = got
	}
	if got := policy.Delay(queue.KindFetch, 0); got != 5*time.Minute {
		t.Fatalf("Delay(0) = %s", got)
	}
}

func TestDelayUsesKindOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithKindPolicy("archive", func(p *config.KindPolicy) {
		p.Backoff = []int{60, 120}
	}))
	policy := retry.NewPolicy(cfg)
	if got := policy.Delay(queue.KindArchive, 2); got != 2*time.Minute {
		t.Fatalf("Delay = %s", got)
	}
	if got := policy.Delay(queue.KindFetch, 2); got != 15*time.Minute {
		t.Fatalf("fetch schedule affected by archive override: %s", got)
	}
}

func TestTransientFailureBacksOff(t *testing.T) {
	policy := retry.NewPolicy(testsupport.NewConfig(t))
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	job := &queue.Job{ID: 1, Kind: queue.KindFetch, AttemptCount: 1, MaxRetries: 5}

	err := services.Wrap(services.ErrTransient, "fetch", "download", "reset", errors.New("ECONNRESET"))
	tr := policy.OnFailure(job, err, now)
	if tr.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", tr.Status)
	}
	if tr.AttemptCount != 2 {
		t.Fatalf("expected attempt 2, got %d", tr.AttemptCount)
	}
	if !tr.NextEligibleAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected next eligible: %s", tr.NextEligibleAt)
	}
	if tr.Error == "" {
		t.Fatal("expected error text")
	}
}

func TestQuarantineCeiling(t *testing.T) {
	policy := retry.NewPolicy(testsupport.NewConfig(t))
	now := time.Now()
	job := &queue.Job{Kind: queue.KindFetch, MaxRetries: 3}

	for attempt := 0; attempt < 3; attempt++ {
		job.AttemptCount = attempt
		tr := policy.OnFailure(job, errors.New("timeout"), now)
		wantQuarantine := attempt+1 >= 3
		if (tr.Status == queue.StatusQuarantined) != wantQuarantine {
			t.Fatalf("attempt %d: status %s", attempt, tr.Status)
		}
		if wantQuarantine && !tr.NextEligibleAt.IsZero() {
			t.Fatal("quarantine must not schedule a retry")
		}
	}
}

func TestFatalQuarantinesImmediately(t *testing.T) {
	policy := retry.NewPolicy(nil)
	job := &queue.Job{Kind: queue.KindBundle, MaxRetries: 10}
	for _, err := range []error{
		services.Wrap(services.ErrFatal, "bundle", "hash", "corrupt input", nil),
		services.Wrap(services.ErrValidation, "bundle", "params", "missing cycle", nil),
		services.Wrap(services.ErrNotFound, "fetch", "head", "404", nil),
	} {
		tr := policy.OnFailure(job, err, time.Now())
		if tr.Status != queue.StatusQuarantined || tr.AttemptCount != 1 {
			t.Fatalf("expected immediate quarantine for %v, got %+v", err, tr)
		}
	}
}

func TestErrorTextIsTruncatedOnRuneBoundary(t *testing.T) {
	policy := retry.NewPolicy(nil)
	job := &queue.Job{Kind: queue.KindFetch, MaxRetries: 5}
	long := "x" + strings.Repeat("é", 1500)

	tr := policy.OnFailure(job, errors.New(long), time.Now())
	if !utf8.ValidString(tr.Error) {
		t.Fatalf("stored error is not valid UTF-8 (len %d)", len(tr.Error))
	}
	if len(tr.Error) > 2000 || len(tr.Error) < 1999 {
		t.Fatalf("unexpected truncated length %d", len(tr.Error))
	}
}

func TestExhausted(t *testing.T) {
	cases := []struct {
		attempts, max int
		want          bool
	}{
		{1, 3, false},
		{2, 3, false},
		{3, 3, true},
		{4, 3, true},
		{1, 1, true},
	}
	for _, tc := range cases {
		if got := retry.Exhausted(tc.attempts, tc.max); got != tc.want {
			t.Fatalf("Exhausted(%d, %d) = %v, want %v", tc.attempts, tc.max, got, tc.want)
		}
	}
}
