package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"wikiseed/internal/database"
	"wikiseed/internal/pipeline"
	"wikiseed/internal/queue"
	"wikiseed/internal/testsupport"
)

func TestNextCycleDate(t *testing.T) {
	cases := []struct {
		now  string
		days []int
		want string
	}{
		{"2026-10-01", []int{1, 20}, "2026-10-20"},
		{"2026-10-19", []int{1, 20}, "2026-10-20"},
		{"2026-10-20", []int{1, 20}, "2026-11-01"},
		{"2026-12-25", []int{1, 20}, "2027-01-01"},
		{"2026-02-10", []int{31}, "2026-02-28"},
		{"2026-02-28", []int{31}, "2026-03-31"},
		{"2026-10-05", nil, "2026-11-01"},
		{"2026-10-05", []int{20, 1, 0, 40}, "2026-10-20"},
	}
	for _, tc := range cases {
		now, _ := time.Parse(pipeline.CycleLayout, tc.now)
		got := pipeline.NextCycleDate(now.Add(13*time.Hour), tc.days).Format(pipeline.CycleLayout)
		if got != tc.want {
			t.Fatalf("NextCycleDate(%s, %v) = %s, want %s", tc.now, tc.days, got, tc.want)
		}
	}
}

func TestTriggerSeedsDiscoverAndBarrier(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	out, err := pipeline.Trigger(ctx, store, "2026-11-01", []string{"enwiki", "dewiki"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	discover := testsupport.MustGet(t, store, out.DiscoverID)
	bundle := testsupport.MustGet(t, store, out.BundleID)
	if discover.Kind != queue.KindDiscover || discover.GroupKey != "2026-11-01" {
		t.Fatalf("unexpected discover job: %+v", discover)
	}
	if bundle.Kind != queue.KindBundle || !bundle.Barrier || bundle.ParentID != discover.ID {
		t.Fatalf("unexpected bundle job: %+v", bundle)
	}
	if eligible, err := store.IsEligible(ctx, bundle.ID); err != nil || eligible {
		t.Fatalf("expected bundle to wait on discover, eligible=%v err=%v", eligible, err)
	}

	last, ok, err := store.DB().State(ctx, database.StateDiscoveryLastCycle)
	if err != nil || !ok || last != "2026-11-01" {
		t.Fatalf("expected last cycle recorded, got %q ok=%v err=%v", last, ok, err)
	}

	if _, err := pipeline.Trigger(ctx, store, "2026-11-01", nil); !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected duplicate trigger rejected, got %v", err)
	}
	jobs, err := store.List(ctx, queue.Filter{GroupKey: "2026-11-01"})
	if err != nil || len(jobs) != 2 {
		t.Fatalf("expected the duplicate trigger to add nothing, got %d jobs (err=%v)", len(jobs), err)
	}
}

func TestTriggerRejectsMalformedCycle(t *testing.T) {
	store := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	if _, err := pipeline.Trigger(context.Background(), store, "November", nil); !errors.Is(err, queue.ErrInvalidJob) {
		t.Fatalf("expected invalid cycle error, got %v", err)
	}
}
