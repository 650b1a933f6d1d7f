// Package history archives terminal task executions in SQLite so the
// host keeps a durable record beyond the scheduler's bounded in-memory
// retention.
package history

import (
	"context"
	"database/sql"
	"time"

	"memflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS executions (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  state TEXT NOT NULL CHECK(state IN ('completed','failed','canceled')),
  priority INTEGER NOT NULL,
  created_at DATETIME NOT NULL,
  started_at DATETIME,
  ended_at DATETIME,
  error TEXT,
  output_path TEXT,
  byte_count INTEGER,
  throughput REAL,
  recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_executions_recorded ON executions(recorded_at DESC);
CREATE TABLE IF NOT EXISTS stage_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  execution_id TEXT NOT NULL,
  stage TEXT NOT NULL,
  attempt INTEGER NOT NULL,
  outcome TEXT NOT NULL,
  error TEXT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME NOT NULL,
  FOREIGN KEY(execution_id) REFERENCES executions(id)
);
`
	_, err := db.Exec(schema)
	return err
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Record archives one terminal snapshot with its full attempt log.
func (s *Store) Record(ctx context.Context, snap domain.TaskSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var outputPath sql.NullString
	var byteCount sql.NullInt64
	var throughput sql.NullFloat64
	if snap.Result != nil {
		outputPath = sql.NullString{String: snap.Result.OutputPath, Valid: true}
		byteCount = sql.NullInt64{Int64: snap.Result.ByteCount, Valid: true}
		throughput = sql.NullFloat64{Float64: snap.Result.Throughput, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
INSERT OR REPLACE INTO executions
  (id,profile_id,state,priority,created_at,started_at,ended_at,error,output_path,byte_count,throughput)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		snap.ID, snap.ProfileID, string(snap.State), int(snap.Priority),
		snap.CreatedAt, nullTime(snap.StartedAt), nullTime(snap.EndedAt),
		snap.Error, outputPath, byteCount, throughput)
	if err != nil {
		return err
	}

	// Re-recording a task replaces its attempt log instead of appending.
	if _, err = tx.ExecContext(ctx, `DELETE FROM stage_attempts WHERE execution_id=?`, snap.ID); err != nil {
		return err
	}

	for _, a := range snap.Attempts {
		_, err = tx.ExecContext(ctx, `
INSERT INTO stage_attempts (execution_id,stage,attempt,outcome,error,started_at,finished_at)
VALUES (?,?,?,?,?,?,?)`,
			snap.ID, a.Stage, a.Attempt, a.Outcome, a.Error, a.StartedAt, a.FinishedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRecent returns the most recently archived executions.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.TaskSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,profile_id,state,priority,created_at,started_at,ended_at,error,output_path,byte_count,throughput
FROM executions ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []domain.TaskSnapshot
	for rows.Next() {
		var snap domain.TaskSnapshot
		var state string
		var priority int
		var startedAt, endedAt sql.NullTime
		var outputPath sql.NullString
		var byteCount sql.NullInt64
		var throughput sql.NullFloat64
		if err := rows.Scan(&snap.ID, &snap.ProfileID, &state, &priority, &snap.CreatedAt,
			&startedAt, &endedAt, &snap.Error, &outputPath, &byteCount, &throughput); err != nil {
			return nil, err
		}
		snap.State = domain.TaskState(state)
		snap.Priority = domain.Priority(priority)
		if startedAt.Valid {
			snap.StartedAt = startedAt.Time
		}
		if endedAt.Valid {
			snap.EndedAt = endedAt.Time
		}
		if outputPath.Valid {
			snap.Result = &domain.TaskResult{
				OutputPath: outputPath.String,
				ByteCount:  byteCount.Int64,
				Throughput: throughput.Float64,
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Attempts returns the archived attempt log for one execution.
func (s *Store) Attempts(ctx context.Context, executionID string) ([]domain.StageAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stage,attempt,outcome,error,started_at,finished_at
FROM stage_attempts WHERE execution_id=? ORDER BY id`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.StageAttempt
	for rows.Next() {
		var a domain.StageAttempt
		if err := rows.Scan(&a.Stage, &a.Attempt, &a.Outcome, &a.Error, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
