package testsupport

import (
	"context"
	"testing"

	"wikiseed/internal/config"
	"wikiseed/internal/database"
	"wikiseed/internal/grouping"
	"wikiseed/internal/queue"
)

// MustOpenDB opens the database for cfg and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenQueue opens a queue.Store on a fresh database for cfg.
func MustOpenQueue(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()
	opts = append([]queue.Option{queue.WithConfig(cfg)}, opts...)
	return queue.New(MustOpenDB(t, cfg), opts...)
}

// MustOpenGrouping opens a grouping.Manager on db.
func MustOpenGrouping(t testing.TB, db *database.DB, opts ...grouping.Option) *grouping.Manager {
	t.Helper()
	return grouping.New(db, opts...)
}

// MustEnqueue enqueues job and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, job queue.NewJob) int64 {
	t.Helper()

	id, err := store.Enqueue(context.Background(), job)
	if err != nil {
		t.Fatalf("store.Enqueue(%s %q): %v", job.Kind, job.Target, err)
	}
	return id
}

// MustGet fetches a job and fails the test on error.
func MustGet(t testing.TB, store *queue.Store, id int64) *queue.Job {
	t.Helper()

	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%d): %v", id, err)
	}
	return job
}
