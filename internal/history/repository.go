// Package history provides access to the scene_runs table for querying
// past scene activity in a room.
//
// This is distinct from scene runtime state: a run history entry is written
// once a scene starts and finalised once it ends, but the controller never
// reloads one to resume a scene after a restart.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run represents a single scene execution.
type Run struct {
	ID          string         `json:"id"`
	RoomID      string         `json:"room_id"`
	SceneID     string         `json:"scene_id"`
	Trigger     string         `json:"trigger"` // button, dashboard, mqtt
	Status      string         `json:"status"`  // running, completed, aborted
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Duration    float64        `json:"duration_seconds,omitempty"`
	FinalState  string         `json:"final_state,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Filter controls which runs to return.
type Filter struct {
	RoomID  string // optional: filter by room
	SceneID string // optional: filter by scene
	Status  string // optional: filter by status
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains the paginated run results.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository defines the interface for scene run history operations.
type Repository interface {
	Start(ctx context.Context, run *Run) error
	Finish(ctx context.Context, id, status, finalState string, endedAt time.Time, detail map[string]any) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores scene run history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new scene run history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Start inserts a new run record marking a scene as running. The ID and
// StartedAt are generated if empty.
func (r *SQLiteRepository) Start(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = "run-" + uuid.NewString()[:8]
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = "running"
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scene_runs (id, room_id, scene_id, trigger, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.RoomID, run.SceneID, run.Trigger, run.Status,
		run.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting scene run: %w", err)
	}

	return nil
}

// Finish records the outcome of a previously started run.
func (r *SQLiteRepository) Finish(ctx context.Context, id, status, finalState string, endedAt time.Time, detail map[string]any) error {
	var detailJSON *string
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshalling run detail: %w", err)
		}
		s := string(b)
		detailJSON = &s
	}

	var started string
	if err := r.db.QueryRowContext(ctx,
		"SELECT started_at FROM scene_runs WHERE id = ?", id,
	).Scan(&started); err != nil {
		return fmt.Errorf("loading run %s: %w", id, err)
	}

	startedAt, err := time.Parse(time.RFC3339, started)
	if err != nil {
		return fmt.Errorf("parsing run start time: %w", err)
	}
	duration := endedAt.Sub(startedAt).Seconds()

	_, err = r.db.ExecContext(ctx,
		`UPDATE scene_runs SET status = ?, ended_at = ?, duration_seconds = ?, final_state = ?, detail = ?
		 WHERE id = ?`,
		status, endedAt.UTC().Format(time.RFC3339), duration, nullableString(finalState), detailJSON, id,
	)
	if err != nil {
		return fmt.Errorf("finishing scene run %s: %w", id, err)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns scene runs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit,gocyclo // dynamic query builder: WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for run history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.RoomID != "" {
		conditions = append(conditions, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.SceneID != "" {
		conditions = append(conditions, "scene_id = ?")
		args = append(args, filter.SceneID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM scene_runs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting scene runs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, room_id, scene_id, trigger, status, started_at, ended_at, duration_seconds, final_state, detail FROM scene_runs %s ORDER BY started_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scene runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		var endedAt, finalState, detailJSON sql.NullString
		var duration sql.NullFloat64

		if err := rows.Scan(&run.ID, &run.RoomID, &run.SceneID, &run.Trigger, &run.Status,
			&startedAt, &endedAt, &duration, &finalState, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning scene run: %w", err)
		}

		t, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing run start time %q: %w", startedAt, err)
		}
		run.StartedAt = t

		if endedAt.Valid {
			e, err := time.Parse(time.RFC3339, endedAt.String)
			if err == nil {
				run.EndedAt = &e
			}
		}
		if duration.Valid {
			run.Duration = duration.Float64
		}
		if finalState.Valid {
			run.FinalState = finalState.String
		}
		if detailJSON.Valid && detailJSON.String != "" {
			var detail map[string]any
			if json.Unmarshal([]byte(detailJSON.String), &detail) == nil {
				run.Detail = detail
			}
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene runs: %w", err)
	}

	if runs == nil {
		runs = []Run{}
	}

	return &ListResult{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
