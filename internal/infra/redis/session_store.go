package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/infra/memory"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Runners own live timers, so sessions stay in a local store on the
//     instance that started them.
//   - Redis holds a liveness marker with session metadata so other instances
//     and operators can see which attempts are in flight. Every Get pushes the
//     marker's expiry out by ttl.
//   - Sessions idle for ttl are closed by Sweep, which also drops the marker.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	local  *memory.SessionStore
}

type sessionMarker struct {
	QuizID    int64     `json:"quizId"`
	UserID    string    `json:"userId"`
	StartedAt time.Time `json:"startedAt"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration, opts ...memory.SessionStoreOption) *SessionStore {
	opts = append([]memory.SessionStoreOption{memory.WithIdleTTL(ttl)}, opts...)
	return &SessionStore{
		client: client,
		ttl:    ttl,
		local:  memory.NewSessionStore(opts...),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.local.Put(session)

	data, err := json.Marshal(sessionMarker{
		QuizID:    session.QuizID,
		UserID:    session.Owner.UserID,
		StartedAt: session.StartedAt,
	})
	if err != nil {
		return
	}
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID), data, s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	session, ok := s.local.Get(sessionID)
	if ok {
		_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.local.Delete(sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Sweep closes idle sessions and removes their markers.
func (s *SessionStore) Sweep() []string {
	evicted := s.local.Sweep()
	if len(evicted) == 0 {
		return nil
	}
	keys := make([]string, 0, len(evicted))
	for _, id := range evicted {
		keys = append(keys, s.key(id))
	}
	_ = s.client.Del(context.Background(), keys...).Err()
	return evicted
}

// Run sweeps every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
