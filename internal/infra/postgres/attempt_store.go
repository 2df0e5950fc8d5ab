package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-runner/internal/domain"
)

// AttemptStore persists submitted attempts in the attempts table.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, session_id, quiz_id, user_id, username, correct, total, percentage, started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SessionID, a.QuizID, a.UserID, a.Username, a.Correct, a.Total, a.Percentage, a.StartedAt, a.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID int64) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, quiz_id, user_id, username, correct, total, percentage, started_at, submitted_at
		 FROM attempts WHERE quiz_id = $1 ORDER BY submitted_at DESC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var a domain.Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuizID, &a.UserID, &a.Username,
			&a.Correct, &a.Total, &a.Percentage, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
