package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
)

// SessionStatus is the lifecycle status the quiz API tracks for a session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid session status")

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionActive, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// SessionRecord is the quiz API's view of a hosted session.
type SessionRecord struct {
	ID     int64         `json:"id,omitempty"`
	QuizID int64         `json:"quiz_id"`
	HostID int64         `json:"host_id"`
	URL    string        `json:"url"`
	Status SessionStatus `json:"status"`
}

// CreateSession registers a session record.
func (c *Client) CreateSession(ctx context.Context, rec SessionRecord) (SessionRecord, error) {
	if !rec.Status.Valid() {
		return SessionRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	var created SessionRecord
	if err := c.do(ctx, http.MethodPost, "/sessions/", nil, rec, &created); err != nil {
		return SessionRecord{}, err
	}
	return created, nil
}

// RegisterSession implements app.SessionRegistrar: the host is the identity in
// ctx, whose user id must be numeric for the quiz API.
func (c *Client) RegisterSession(ctx context.Context, quizID int64, sessionID string) error {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	hostID, err := strconv.ParseInt(id.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("host id %q is not numeric: %w", id.UserID, err)
	}
	_, err = c.CreateSession(ctx, SessionRecord{
		QuizID: quizID,
		HostID: hostID,
		URL:    "/sessions/" + sessionID,
		Status: SessionActive,
	})
	return err
}
