package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (quiz API, Postgres, ...).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository keeps loaded quizzes for a TTL. Public quizzes are shared by
// all callers; any other quiz is only reused for the credential it was loaded
// with, so the quiz API keeps deciding who may read it.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu      sync.RWMutex
	entries map[quizKey]quizEntry
}

// quizKey scopes a cache entry; publicScope marks entries any caller may read.
type quizKey struct {
	quizID int64
	scope  string
}

const publicScope = ""

type quizEntry struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[quizKey]quizEntry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	scope := auth.CredentialScope(ctx)
	if quiz, ok := r.lookup(quizID, scope); ok {
		return quiz, nil
	}

	flight := strconv.FormatInt(quizID, 10) + "/" + scope
	v, err, _ := r.sf.Do(flight, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID, scope); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.remember(quizID, quiz, scope)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// lookup prefers the shared public entry over the caller's own.
func (r *QuizRepository) lookup(quizID int64, scope string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range []quizKey{{quizID, publicScope}, {quizID, scope}} {
		if e, ok := r.entries[key]; ok && e.expiresAt.After(now) {
			return e.quiz, true
		}
	}
	return domain.Quiz{}, false
}

func (r *QuizRepository) remember(quizID int64, quiz domain.Quiz, scope string) {
	key := quizKey{quizID: quizID, scope: scope}
	if quiz.IsPublic {
		key.scope = publicScope
	}
	expiresAt := r.clock().Add(r.ttlWithJitter())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = quizEntry{quiz: quiz, expiresAt: expiresAt}
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[int64]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[int64]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
