// Package runstore records batch runs in SQLite so runs of different
// experiments can be compared later.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/coolbeans/election2016/pkg/batch"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// RunRecord is one stored batch run.
type RunRecord struct {
	ID          string           `json:"id"`
	State       string           `json:"state"`
	Experiment  int              `json:"experiment"`
	Profile     string           `json:"profile"`
	Seed        *uint64          `json:"seed,omitempty"`
	Total       int64            `json:"total"`
	FormalAbove int64            `json:"formal_above"`
	FormalBelow int64            `json:"formal_below"`
	Informal    map[string]int64 `json:"informal"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
}

// RecordFromReport copies the counts of a batch report.
func RecordFromReport(report *batch.Report, seed *uint64) *RunRecord {
	informal := make(map[string]int64, len(report.Informal))
	for reason, count := range report.Informal {
		informal[reason] = count
	}
	return &RunRecord{
		State:       report.State,
		Experiment:  report.Experiment,
		Profile:     report.Profile,
		Seed:        seed,
		Total:       report.Total,
		FormalAbove: report.FormalAbove,
		FormalBelow: report.FormalBelow,
		Informal:    informal,
		StartedAt:   report.StartedAt,
		Duration:    report.Duration,
	}
}

// Filter narrows ListRuns. Zero fields match everything.
type Filter struct {
	State      string
	Experiment int
	Limit      int
}

// ExperimentSummary collates the latest run of each state for one
// experiment.
type ExperimentSummary struct {
	Experiment  int              `json:"experiment"`
	States      []string         `json:"states"`
	Total       int64            `json:"total"`
	FormalAbove int64            `json:"formal_above"`
	FormalBelow int64            `json:"formal_below"`
	Informal    map[string]int64 `json:"informal"`
}

// InformalTotal sums the informal counts.
func (summary ExperimentSummary) InformalTotal() int64 {
	var total int64
	for _, count := range summary.Informal {
		total += count
	}
	return total
}

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (store *Store) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS run (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		experiment INTEGER NOT NULL,
		profile TEXT NOT NULL DEFAULT '',
		seed INTEGER,
		total INTEGER NOT NULL,
		formal_above INTEGER NOT NULL,
		formal_below INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_state_experiment ON run(state, experiment, started_at);

	CREATE TABLE IF NOT EXISTS run_informal (
		run_id TEXT NOT NULL REFERENCES run(id) ON DELETE CASCADE,
		reason TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (run_id, reason)
	);
	`
	if _, err := store.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (store *Store) Close() error {
	return store.db.Close()
}

// SaveRun stores run, assigning an id when it has none, and returns the id.
func (store *Store) SaveRun(ctx context.Context, run *RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seed sql.NullInt64
	if run.Seed != nil {
		seed = sql.NullInt64{Int64: int64(*run.Seed), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO run (id, state, experiment, profile, seed, total, formal_above, formal_below, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.State, run.Experiment, run.Profile, seed,
		run.Total, run.FormalAbove, run.FormalBelow,
		run.StartedAt.UnixNano(), int64(run.Duration))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for reason, count := range run.Informal {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_informal (run_id, reason, count) VALUES (?, ?, ?)`,
			run.ID, reason, count); err != nil {
			return "", fmt.Errorf("failed to insert informal count %s: %w", reason, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns stored runs, newest first.
func (store *Store) ListRuns(ctx context.Context, filter Filter) ([]*RunRecord, error) {
	query := `
		SELECT id, state, experiment, profile, seed, total, formal_above, formal_below, started_at, duration_ns
		FROM run
		WHERE (? = '' OR state = ?) AND (? = 0 OR experiment = ?)
		ORDER BY started_at DESC, id`
	args := []any{filter.State, filter.State, filter.Experiment, filter.Experiment}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	byID := make(map[string]*RunRecord)
	for rows.Next() {
		var run RunRecord
		var seed sql.NullInt64
		var startedAt, duration int64
		if err := rows.Scan(&run.ID, &run.State, &run.Experiment, &run.Profile, &seed,
			&run.Total, &run.FormalAbove, &run.FormalBelow, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if seed.Valid {
			value := uint64(seed.Int64)
			run.Seed = &value
		}
		run.StartedAt = time.Unix(0, startedAt)
		run.Duration = time.Duration(duration)
		run.Informal = make(map[string]int64)
		runs = append(runs, &run)
		byID[run.ID] = &run
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	if len(runs) == 0 {
		return runs, nil
	}
	if err := store.loadInformal(ctx, byID); err != nil {
		return nil, err
	}
	return runs, nil
}

func (store *Store) loadInformal(ctx context.Context, byID map[string]*RunRecord) error {
	rows, err := store.db.QueryContext(ctx, `SELECT run_id, reason, count FROM run_informal`)
	if err != nil {
		return fmt.Errorf("failed to query informal counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID, reason string
		var count int64
		if err := rows.Scan(&runID, &reason, &count); err != nil {
			return fmt.Errorf("failed to scan informal count: %w", err)
		}
		if run, ok := byID[runID]; ok {
			run.Informal[reason] = count
		}
	}
	return rows.Err()
}

// CompareExperiments collates, per experiment, the most recent run of each
// state. An empty state collates all states.
func (store *Store) CompareExperiments(ctx context.Context, state string) ([]ExperimentSummary, error) {
	runs, err := store.ListRuns(ctx, Filter{State: state})
	if err != nil {
		return nil, err
	}

	type key struct {
		state      string
		experiment int
	}
	seen := make(map[key]bool)
	summaries := make(map[int]*ExperimentSummary)

	// Runs arrive newest first, so the first run of a key is its latest.
	for _, run := range runs {
		runKey := key{state: run.State, experiment: run.Experiment}
		if seen[runKey] {
			continue
		}
		seen[runKey] = true

		summary, ok := summaries[run.Experiment]
		if !ok {
			summary = &ExperimentSummary{Experiment: run.Experiment, Informal: make(map[string]int64)}
			summaries[run.Experiment] = summary
		}
		summary.States = append(summary.States, run.State)
		summary.Total += run.Total
		summary.FormalAbove += run.FormalAbove
		summary.FormalBelow += run.FormalBelow
		for reason, count := range run.Informal {
			summary.Informal[reason] += count
		}
	}

	out := make([]ExperimentSummary, 0, len(summaries))
	for _, summary := range summaries {
		sort.Strings(summary.States)
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Experiment < out[j].Experiment
	})
	return out, nil
}

// DeleteRun removes a run and its informal counts.
func (store *Store) DeleteRun(ctx context.Context, id string) error {
	result, err := store.db.ExecContext(ctx, `DELETE FROM run WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}
