package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (quiz API, Postgres, ...).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis and falls back to a loader on a miss.
// Public quizzes live under quiz:{id}:content and are shared; other quizzes
// live under quiz:{id}:content:{scope} for the credential that loaded them.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	scope := auth.CredentialScope(ctx)
	if quiz, ok := r.cached(ctx, quizID, scope); ok {
		return quiz, nil
	}

	v, err, _ := r.sf.Do(scopedKey(quizID, scope), func() (interface{}, error) {
		if quiz, ok := r.cached(ctx, quizID, scope); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		data, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		key := scopedKey(quizID, scope)
		if quiz.IsPublic {
			key = publicKey(quizID)
		}
		// a failed write only costs another load
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Invalidate drops the shared copy of a quiz and the caller's own copy.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID int64) error {
	return r.client.Del(ctx, publicKey(quizID), scopedKey(quizID, auth.CredentialScope(ctx))).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID int64, scope string) (domain.Quiz, bool) {
	values, err := r.client.MGet(ctx, publicKey(quizID), scopedKey(quizID, scope)).Result()
	if err != nil {
		return domain.Quiz{}, false
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var quiz domain.Quiz
		if err := json.Unmarshal([]byte(raw), &quiz); err == nil {
			return quiz, true
		}
	}
	return domain.Quiz{}, false
}

func publicKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":content"
}

func scopedKey(quizID int64, scope string) string {
	return publicKey(quizID) + ":" + scope
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

