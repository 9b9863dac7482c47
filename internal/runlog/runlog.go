// Package runlog persists batch run history to sqlite for post-run
// inspection across runs.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepice-data/atlmerge/internal/batch"
)

// Log is a sqlite-backed run history.
type Log struct {
	db *sql.DB
}

// Open opens (and if necessary initialises) the run log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// busy timeout avoids transient locks when inspected while a batch runs
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			started_at    TIMESTAMP,
			completed_at  TIMESTAMP,
			total         BIGINT,
			failures      BIGINT
		);
		CREATE TABLE IF NOT EXISTS track_results (
			run_id        TEXT,
			track         BIGINT,
			output_path   TEXT,
			error         TEXT,
			duration_ms   BIGINT,
			recorded_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_track_results_run
			ON track_results(run_id, track);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// BeginRun registers a new run before any results arrive.
func (l *Log) BeginRun(runID string, startedAt time.Time, total int) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (run_id, started_at, total, failures) VALUES (?, ?, ?, 0)`,
		runID, startedAt.UTC(), total,
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordResult appends one track outcome to the run.
func (l *Log) RecordResult(runID string, res batch.Result) error {
	_, err := l.db.Exec(
		`INSERT INTO track_results (run_id, track, output_path, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, res.Track, res.OutputPath, res.Error, res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record track %04d: %w", res.Track, err)
	}
	return nil
}

// FinishRun closes out a run with its final failure count.
func (l *Log) FinishRun(runID string, completedAt time.Time, failures int) error {
	_, err := l.db.Exec(
		`UPDATE runs SET completed_at = ?, failures = ? WHERE run_id = ?`,
		completedAt.UTC(), failures, runID,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// FailedTracks returns the tracks that failed in a run, ordered by
// track id.
func (l *Log) FailedTracks(runID string) ([]int, error) {
	rows, err := l.db.Query(
		`SELECT track FROM track_results
		 WHERE run_id = ? AND error != '' ORDER BY track`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var track int
		if err := rows.Scan(&track); err != nil {
			return nil, err
		}
		out = append(out, track)
	}
	return out, rows.Err()
}

// LastRun returns the most recently started run id, or empty if none.
func (l *Log) LastRun() (string, error) {
	var runID string
	err := l.db.QueryRow(
		`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return runID, err
}
