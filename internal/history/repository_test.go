package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/database"
)

const schema = `
CREATE TABLE scene_runs (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	scene_id TEXT NOT NULL,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	duration_seconds REAL,
	final_state TEXT,
	detail TEXT
);
`

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history_test.db")
	db, err := database.Open(database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestStartAndFinish(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	run := &Run{RoomID: "room1", SceneID: "intro", Trigger: "button"}
	if err := repo.Start(ctx, run); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if run.ID == "" {
		t.Error("Start() should assign an ID")
	}

	err := repo.Finish(ctx, run.ID, "completed", "ended", time.Now().UTC(), map[string]any{"note": "ok"})
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{RoomID: "room1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
	if result.Runs[0].Status != "completed" {
		t.Errorf("Status = %q, want completed", result.Runs[0].Status)
	}
	if result.Runs[0].FinalState != "ended" {
		t.Errorf("FinalState = %q, want ended", result.Runs[0].FinalState)
	}
	if result.Runs[0].Detail["note"] != "ok" {
		t.Errorf("Detail[note] = %v, want ok", result.Runs[0].Detail["note"])
	}
}

func TestListFilters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, sc := range []string{"intro", "intro", "finale"} {
		run := &Run{RoomID: "room1", SceneID: sc, Trigger: "button"}
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{SceneID: "intro"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}
}

func TestListPagination(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		run := &Run{RoomID: "room1", SceneID: "intro", Trigger: "button"}
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Runs) != 2 {
		t.Errorf("len(Runs) = %d, want 2", len(result.Runs))
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
}
