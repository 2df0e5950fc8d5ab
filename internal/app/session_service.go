package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/runner"
)

// QuizRepository loads quiz content with questions embedded (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// AttemptStore persists submitted sessions.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	ListAttempts(ctx context.Context, quizID int64) ([]domain.Attempt, error)
}

// AttemptPublisher announces submitted sessions to other services.
type AttemptPublisher interface {
	PublishAttempt(ctx context.Context, attempt domain.Attempt) error
}

// SessionRegistrar records a started session with the quiz API.
type SessionRegistrar interface {
	RegisterSession(ctx context.Context, quizID int64, sessionID string) error
}

// Session is one live quiz-taking attempt owned by a single user.
type Session struct {
	ID        string
	QuizID    int64
	Owner     auth.Identity
	StartedAt time.Time
	runner    *runner.Runner

	// mu guards the stored attempt; the runner freezes before the save lands.
	mu      sync.Mutex
	attempt *domain.Attempt
	saved   bool
}

// NewSession wraps a runner; exported for infrastructure layers and tests.
func NewSession(id string, owner auth.Identity, startedAt time.Time, r *runner.Runner) *Session {
	return &Session{ID: id, QuizID: r.Quiz().ID, Owner: owner, StartedAt: startedAt, runner: r}
}

func (s *Session) Runner() *runner.Runner {
	return s.runner
}

// SessionService contains the quiz-taking use cases.
type SessionService struct {
	quizzes   QuizRepository
	sessions  SessionRepository
	attempts  AttemptStore
	publisher AttemptPublisher
	registrar SessionRegistrar
	scheduler runner.Scheduler
	now       func() time.Time
	newID     func() string
	log       logrus.FieldLogger
}

type ServiceOption func(*SessionService)

func WithPublisher(p AttemptPublisher) ServiceOption {
	return func(s *SessionService) { s.publisher = p }
}

func WithRegistrar(r SessionRegistrar) ServiceOption {
	return func(s *SessionService) { s.registrar = r }
}

// WithScheduler sets the countdown scheduler handed to every runner.
func WithScheduler(sched runner.Scheduler) ServiceOption {
	return func(s *SessionService) { s.scheduler = sched }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SessionService) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *SessionService) { s.log = log }
}

func NewSessionService(quizzes QuizRepository, sessions SessionRepository, attempts AttemptStore, opts ...ServiceOption) *SessionService {
	s := &SessionService{
		quizzes:   quizzes,
		sessions:  sessions,
		attempts:  attempts,
		scheduler: runner.TickerScheduler{},
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quiz returns quiz content for display.
func (s *SessionService) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Start opens a fresh runner for the identity in ctx.
func (s *SessionService) Start(ctx context.Context, quizID int64) (*Session, runner.Snapshot, error) {
	owner, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, runner.Snapshot{}, domain.ErrUnauthorized
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, runner.Snapshot{}, err
	}

	r, err := runner.New(quiz, quiz.Questions, runner.WithScheduler(s.scheduler))
	if err != nil {
		if errors.Is(err, domain.ErrNoQuestions) {
			return nil, runner.Snapshot{State: runner.StateEmpty, QuizID: quiz.ID, QuizTitle: quiz.Title}, err
		}
		return nil, runner.Snapshot{}, err
	}

	session := NewSession(s.newID(), owner, s.now(), r)
	s.sessions.Put(session)

	log := s.log.WithFields(logrus.Fields{"session_id": session.ID, "quiz_id": quizID, "user_id": owner.UserID})
	log.Info("session started")

	if s.registrar != nil {
		if err := s.registrar.RegisterSession(ctx, quizID, session.ID); err != nil {
			log.WithError(err).Warn("register session with quiz api")
		}
	}
	return session, r.Snapshot(), nil
}

// Answer records a response for a question of the session.
func (s *SessionService) Answer(ctx context.Context, sessionID string, questionID int64, resp domain.Response) (runner.Snapshot, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return runner.Snapshot{}, err
	}
	if err := session.runner.RecordAnswer(questionID, resp); err != nil {
		return session.runner.Snapshot(), err
	}
	return session.runner.Snapshot(), nil
}

// Advance moves to the next question; at the last question the state is unchanged.
func (s *SessionService) Advance(ctx context.Context, sessionID string) (runner.Snapshot, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return runner.Snapshot{}, err
	}
	session.runner.Advance()
	return session.runner.Snapshot(), nil
}

// Retreat moves to the previous question; at the first question the state is unchanged.
func (s *SessionService) Retreat(ctx context.Context, sessionID string) (runner.Snapshot, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return runner.Snapshot{}, err
	}
	session.runner.Retreat()
	return session.runner.Snapshot(), nil
}

// Snapshot returns the current state of a session.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (runner.Snapshot, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return runner.Snapshot{}, err
	}
	return session.runner.Snapshot(), nil
}

// Subscribe returns a channel that receives session snapshots, including countdown ticks.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(ctx context.Context, sessionID string) (<-chan runner.Snapshot, func(), error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.runner.Subscribe()
	return ch, cancel, nil
}

// Submit scores the session, stores the attempt and publishes it.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (domain.Result, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}

	result, err := session.runner.Submit()
	if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
		return result, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.saved {
		return result, domain.ErrAlreadySubmitted
	}
	if session.attempt == nil {
		session.attempt = &domain.Attempt{
			ID:          s.newID(),
			SessionID:   session.ID,
			QuizID:      session.QuizID,
			UserID:      session.Owner.UserID,
			Username:    session.Owner.Username,
			Correct:     result.Correct,
			Total:       result.Total,
			Percentage:  result.Percentage,
			StartedAt:   session.StartedAt,
			SubmittedAt: s.now(),
		}
	}
	attempt := *session.attempt
	log := s.log.WithFields(logrus.Fields{"session_id": session.ID, "quiz_id": session.QuizID, "user_id": session.Owner.UserID})

	// A failed save leaves the session unsaved so the caller can submit again.
	if err := s.attempts.SaveAttempt(ctx, attempt); err != nil {
		log.WithError(err).Warn("save attempt")
		return result, fmt.Errorf("save attempt: %w", err)
	}
	session.saved = true
	log.WithField("percentage", result.Percentage).Info("session submitted")

	if s.publisher != nil {
		if err := s.publisher.PublishAttempt(ctx, attempt); err != nil {
			log.WithError(err).Warn("publish attempt")
		}
	}
	return result, nil
}

// Close discards the session and its timer.
func (s *SessionService) Close(ctx context.Context, sessionID string) error {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return err
	}
	session.runner.Close()
	s.sessions.Delete(sessionID)
	return nil
}

// Attempts lists stored attempts for a quiz, newest first.
func (s *SessionService) Attempts(ctx context.Context, quizID int64) ([]domain.Attempt, error) {
	return s.attempts.ListAttempts(ctx, quizID)
}

func (s *SessionService) owned(ctx context.Context, sessionID string) (*Session, error) {
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Owner.UserID != caller.UserID {
		return nil, domain.ErrForbidden
	}
	return session, nil
}
