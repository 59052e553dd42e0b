// Package history persists analysis runs to SQLite: per-run metrics, the
// ranked recommendation list, and every demoted alternative, so a finding
// that lost a tradeoff conflict always leaves an audit trail.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"schemadvisor/internal/advisor"
)

// Schema for the run-history tables. Applied by Open.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	recommendation_count INTEGER NOT NULL,
	metrics_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS recommendations (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	rank INTEGER NOT NULL,
	table_name TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	priority TEXT NOT NULL,
	roi REAL NOT NULL,
	manual_review INTEGER NOT NULL DEFAULT 0,
	payload_json TEXT NOT NULL,
	PRIMARY KEY (run_id, rank)
);
CREATE TABLE IF NOT EXISTS alternatives (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	winner_rank INTEGER NOT NULL,
	table_name TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	roi REAL NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recommendations_run ON recommendations(run_id);
CREATE INDEX IF NOT EXISTS idx_alternatives_run ON alternatives(run_id);
`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type RunSummary struct {
	ID                  int64     `json:"id"`
	StartedAt           time.Time `json:"startedAt"`
	FinishedAt          time.Time `json:"finishedAt"`
	RecommendationCount int       `json:"recommendationCount"`
}

type RunDetail struct {
	RunSummary
	Metrics         advisor.RunMetrics       `json:"metrics"`
	Recommendations []advisor.Recommendation `json:"recommendations"`
}

// SaveRun persists one completed run atomically and returns its ID.
func (s *Store) SaveRun(
	ctx context.Context,
	startedAt time.Time,
	recommendations []advisor.Recommendation,
	metrics advisor.RunMetrics,
) (int64, error) {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return 0, fmt.Errorf("encode run metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO runs (started_at, finished_at, recommendation_count, metrics_json) VALUES (?, ?, ?, ?)",
		startedAt.UnixMilli(), time.Now().UnixMilli(), len(recommendations), string(metricsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i := range recommendations {
		rec := recommendations[i]
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode recommendation %d: %w", rec.Rank, err)
		}
		manualReview := 0
		if rec.ManualReview {
			manualReview = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recommendations (run_id, rank, table_name, pattern_type, priority, roi, manual_review, payload_json) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			runID, rec.Rank, rec.Pattern.Table, string(rec.Pattern.PatternType),
			string(rec.Cost.Priority), rec.Cost.ROI, manualReview, string(payload),
		); err != nil {
			return 0, fmt.Errorf("insert recommendation %d: %w", rec.Rank, err)
		}
		for _, alt := range rec.Alternatives {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO alternatives (run_id, winner_rank, table_name, pattern_type, roi, reason) "+
					"VALUES (?, ?, ?, ?, ?, ?)",
				runID, rec.Rank, alt.Pattern.Table, string(alt.Pattern.PatternType),
				alt.Cost.ROI, alt.Reason,
			); err != nil {
				return 0, fmt.Errorf("insert alternative for rank %d: %w", rec.Rank, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, recommendation_count FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunSummary, 0, limit)
	for rows.Next() {
		var summary RunSummary
		var startedMillis, finishedMillis int64
		if err := rows.Scan(&summary.ID, &startedMillis, &finishedMillis, &summary.RecommendationCount); err != nil {
			return nil, err
		}
		summary.StartedAt = time.UnixMilli(startedMillis)
		summary.FinishedAt = time.UnixMilli(finishedMillis)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// GetRun loads one run with its full recommendation payloads.
func (s *Store) GetRun(ctx context.Context, id int64) (*RunDetail, error) {
	detail := &RunDetail{}
	var startedMillis, finishedMillis int64
	var metricsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, started_at, finished_at, recommendation_count, metrics_json FROM runs WHERE id = ?",
		id,
	).Scan(&detail.ID, &startedMillis, &finishedMillis, &detail.RecommendationCount, &metricsJSON)
	if err != nil {
		return nil, err
	}
	detail.StartedAt = time.UnixMilli(startedMillis)
	detail.FinishedAt = time.UnixMilli(finishedMillis)
	if err := json.Unmarshal([]byte(metricsJSON), &detail.Metrics); err != nil {
		return nil, fmt.Errorf("decode run metrics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload_json FROM recommendations WHERE run_id = ? ORDER BY rank",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec advisor.Recommendation
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode recommendation: %w", err)
		}
		detail.Recommendations = append(detail.Recommendations, rec)
	}
	return detail, rows.Err()
}
