package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wikiseed/internal/database"
)

func openTemp(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenPath(filepath.Join(t.TempDir(), "wikiseed.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTemp(t)
	health, err := db.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.Healthy() {
		t.Fatalf("expected healthy database, got %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("unexpected missing tables: %v", health.MissingTables)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikiseed.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := db.SetState(context.Background(), "k", "v"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	_ = db.Close()

	db, err = database.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	value, ok, err := db.State(context.Background(), "k")
	if err != nil || !ok || value != "v" {
		t.Fatalf("State after reopen = %q %v %v", value, ok, err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikiseed.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := db.Exec(context.Background(), "UPDATE schema_version SET version = ?", database.SchemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err = database.OpenPath(path)
	if !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestStateUnset(t *testing.T) {
	db := openTemp(t)
	_, ok, err := db.State(context.Background(), database.StateAdmissionBand)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if ok {
		t.Fatal("expected unset key")
	}
}

func TestSwapStateReportsChangeOnce(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	prev, changed, err := db.SwapState(ctx, database.StateAdmissionBand, "normal")
	if err != nil || !changed || prev != "" {
		t.Fatalf("first swap = %q %v %v", prev, changed, err)
	}
	if _, changed, _ = db.SwapState(ctx, database.StateAdmissionBand, "normal"); changed {
		t.Fatal("expected no change for identical value")
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := db.SwapState(ctx, database.StateAdmissionBand, "paused")
			if err != nil {
				t.Errorf("SwapState: %v", err)
				return
			}
			if changed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	now := database.FormatTime(time.Now())
	insert := "INSERT INTO bundles (name, created_at) VALUES (?, ?)"
	if _, err := db.Exec(ctx, insert, "cycle-2026-11-01", now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := db.Exec(ctx, insert, "cycle-2026-11-01", now)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if database.IsUniqueViolation(errors.New("other")) {
		t.Fatal("plain error reported as unique violation")
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	base := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	earlier := database.FormatTime(base)
	later := database.FormatTime(base.Add(1500 * time.Microsecond))
	if !(earlier < later) {
		t.Fatalf("expected %q < %q", earlier, later)
	}
	parsed, err := database.ParseTime(later)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(base.Add(1500 * time.Microsecond)) {
		t.Fatalf("round trip mismatch: %s", parsed)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := database.SetStateTx(ctx, tx, "k", "v"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := db.State(ctx, "k"); ok {
		t.Fatal("expected rollback to discard state")
	}
}
