// Package sqlite keeps submitted attempts in a local SQLite file, used by the
// terminal quiz runner when no Postgres is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"quiz-session-runner/internal/domain"
)

// AttemptStore implements app.AttemptStore on SQLite.
type AttemptStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*AttemptStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &AttemptStore{db: db}, nil
}

func (s *AttemptStore) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			quiz_id      INTEGER NOT NULL,
			user_id      TEXT NOT NULL,
			username     TEXT NOT NULL DEFAULT '',
			correct      INTEGER NOT NULL,
			total        INTEGER NOT NULL,
			percentage   INTEGER NOT NULL,
			started_at   INTEGER NOT NULL,
			submitted_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create attempts table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS attempts_quiz_idx ON attempts (quiz_id, submitted_at)`)
	if err != nil {
		return fmt.Errorf("create attempts index: %w", err)
	}
	return nil
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, session_id, quiz_id, user_id, username, correct, total, percentage, started_at, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.QuizID, a.UserID, a.Username, a.Correct, a.Total, a.Percentage,
		a.StartedAt.UnixNano(), a.SubmittedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID int64) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, quiz_id, user_id, username, correct, total, percentage, started_at, submitted_at
		 FROM attempts WHERE quiz_id = ? ORDER BY submitted_at DESC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			a                    domain.Attempt
			started, submittedAt int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuizID, &a.UserID, &a.Username,
			&a.Correct, &a.Total, &a.Percentage, &started, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.StartedAt = time.Unix(0, started).UTC()
		a.SubmittedAt = time.Unix(0, submittedAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
