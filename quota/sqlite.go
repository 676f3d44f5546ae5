package quota

import (
	"context"
	"database/sql"
	"fmt"

	"macroplanner"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	ai_enabled INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS quota (
	user_id    TEXT NOT NULL,
	day        TEXT NOT NULL,
	calls_used INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, day)
);
CREATE TABLE IF NOT EXISTS attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	day        TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	calories   REAL NOT NULL,
	protein    REAL NOT NULL,
	carbs      REAL NOT NULL,
	fat        REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	at         TEXT NOT NULL
);
`

// SQLiteStore is the durable Store used outside tests. SQLite serializes
// writers, so the transaction in CheckAndConsume gives the linearizable
// check-then-increment the Guard requires.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and if needed creates) the quota database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota db: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply quota schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CheckAndConsume(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin quota tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quota (user_id, day, calls_used) VALUES (?, ?, 0)
		 ON CONFLICT (user_id, day) DO NOTHING`, userID, day); err != nil {
		return 0, false, fmt.Errorf("failed to ensure quota row: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE quota SET calls_used = calls_used + 1
		 WHERE user_id = ? AND day = ? AND calls_used < ?`, userID, day, limit)
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment quota: %w", err)
	}
	admitted, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var used int
	if err := tx.QueryRowContext(ctx,
		`SELECT calls_used FROM quota WHERE user_id = ? AND day = ?`, userID, day).Scan(&used); err != nil {
		return 0, false, fmt.Errorf("failed to read quota counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit quota tx: %w", err)
	}
	return used, admitted == 1, nil
}

func (s *SQLiteStore) IsEnabled(ctx context.Context, userID string) (bool, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, ai_enabled) VALUES (?, 1)
		 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return false, fmt.Errorf("failed to ensure user row: %w", err)
	}
	var enabled int
	if err := s.db.QueryRowContext(ctx,
		`SELECT ai_enabled FROM users WHERE user_id = ?`, userID).Scan(&enabled); err != nil {
		return false, fmt.Errorf("failed to read kill switch: %w", err)
	}
	return enabled == 1, nil
}

func (s *SQLiteStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, ai_enabled) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET ai_enabled = excluded.ai_enabled`, userID, v); err != nil {
		return fmt.Errorf("failed to set kill switch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAttempt(ctx context.Context, rec macroplanner.AttemptRecord) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (user_id, day, input_hash, outcome, calories, protein, carbs, fat, latency_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Date, rec.InputHash, rec.Outcome,
		rec.Totals.Calories, rec.Totals.ProteinGrams, rec.Totals.CarbsGrams, rec.Totals.FatGrams,
		rec.Latency.Milliseconds(), rec.At.UTC().Format("2006-01-02T15:04:05Z")); err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}
