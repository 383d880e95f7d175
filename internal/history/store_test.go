package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"sanmiguel/internal/history"
)

func mustOpen(t *testing.T, path string) *history.Store {
	t.Helper()
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordRunRoundTrip(t *testing.T) {
	store := mustOpen(t, filepath.Join(t.TempDir(), "state", "history.db"))
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	run := history.Run{
		ID:               "run-1",
		AssetRoot:        "/scenes/san-miguel",
		Workers:          8,
		StartedAt:        started,
		FinishedAt:       started.Add(90 * time.Second),
		Succeeded:        1,
		Failed:           1,
		Skipped:          3,
		ManifestsWritten: 1,
		BytesWritten:     4096,
	}
	entries := []history.Entry{
		{Source: "/scenes/san-miguel/b.png", Output: "/scenes/san-miguel/b.ktx2", State: "failed", Attempts: 2, ExitCode: 1, Diagnostic: "bad png", Consumers: 1, Duration: 1500 * time.Millisecond},
		{Source: "/scenes/san-miguel/a.png", Output: "/scenes/san-miguel/a.ktx2", State: "succeeded", Attempts: 1, Consumers: 2, Duration: 2 * time.Second},
	}
	if err := store.RecordRun(ctx, run, entries); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if !got.StartedAt.Equal(started) || got.Duration() != 90*time.Second {
		t.Fatalf("unexpected timing: %+v", got)
	}
	if got.OutputDir != "" || got.Workers != 8 || got.BytesWritten != 4096 || got.Skipped != 3 {
		t.Fatalf("unexpected run: %+v", got)
	}

	stored, err := store.Entries(ctx, "run-1")
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if len(stored) != 2 || stored[0].Source != "/scenes/san-miguel/a.png" {
		t.Fatalf("expected entries ordered by source, got %+v", stored)
	}
	if stored[1].Diagnostic != "bad png" || stored[1].ExitCode != 1 || stored[1].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected failed entry: %+v", stored[1])
	}
	if stored[0].Diagnostic != "" || stored[0].Consumers != 2 {
		t.Fatalf("unexpected succeeded entry: %+v", stored[0])
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	store := mustOpen(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		start := base.Add(time.Duration(i) * time.Hour).Add(time.Duration(i*100) * time.Millisecond)
		if err := store.RecordRun(ctx, history.Run{ID: id, AssetRoot: "/a", Workers: 1, StartedAt: start, FinishedAt: start}, nil); err != nil {
			t.Fatalf("RecordRun(%s): %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "third" || runs[1].ID != "second" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	all, err := store.ListRuns(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all runs, got %d (%v)", len(all), err)
	}
}

func TestGetRunMissing(t *testing.T) {
	store := mustOpen(t, filepath.Join(t.TempDir(), "history.db"))
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, history.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRecordRunRejectsDuplicateIDs(t *testing.T) {
	store := mustOpen(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()
	run := history.Run{ID: "dup", AssetRoot: "/a", Workers: 1}
	if err := store.RecordRun(ctx, run, []history.Entry{{Source: "a.png", Output: "a.ktx2", State: "succeeded"}}); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}
	if err := store.RecordRun(ctx, run, []history.Entry{{Source: "b.png", Output: "b.ktx2", State: "failed"}}); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	entries, err := store.Entries(ctx, "dup")
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected failed insert to roll back, got %d entries", len(entries))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store := mustOpen(t, path)
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
