package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/infra/memory"
	"quiz-session-runner/internal/logging"
	"quiz-session-runner/internal/runner"
)

func newTakeService(t *testing.T) (*app.SessionService, *memory.AttemptStore) {
	t.Helper()
	quizzes := sampleQuizzes()
	quizzes[2] = domain.Quiz{ID: 2, Title: "Empty"}
	attempts := memory.NewAttemptStore()
	service := app.NewSessionService(
		memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes), time.Minute),
		memory.NewSessionStore(),
		attempts,
		app.WithScheduler(&runner.ManualScheduler{}),
		app.WithLogger(logging.Discard()),
	)
	return service, attempts
}

func takerContext() context.Context {
	return auth.ContextWithIdentity(context.Background(), auth.Identity{UserID: "ann", Username: "ann"})
}

func TestPlaySessionSubmits(t *testing.T) {
	service, attempts := newTakeService(t)
	var out bytes.Buffer
	in := strings.NewReader("a 2\nn\na 1\nn\nt Pacific\ns\n")

	result, err := playSession(takerContext(), service, 1, in, &out)
	require.NoError(t, err)
	require.Equal(t, domain.Result{Correct: 2, Total: 3, Percentage: 67}, result)
	require.Contains(t, out.String(), "Question 1/3 [15s]")
	require.Contains(t, out.String(), "Question 3/3 [no time limit]")
	require.Contains(t, out.String(), "Score: 2/3 (67%)")

	stored, err := attempts.ListAttempts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "ann", stored[0].UserID)
}

func TestPlaySessionRejectsEarlySubmit(t *testing.T) {
	service, attempts := newTakeService(t)
	var out bytes.Buffer

	_, err := playSession(takerContext(), service, 1, strings.NewReader("s\nx\na 9\nq\n"), &out)
	require.ErrorIs(t, err, errQuit)
	require.Contains(t, out.String(), "Answer the remaining questions first")
	require.Contains(t, out.String(), `unknown command "x"`)
	require.Contains(t, out.String(), "pick an answer by its number")

	stored, _ := attempts.ListAttempts(context.Background(), 1)
	require.Empty(t, stored)
}

func TestPlaySessionEndOfInputAbandons(t *testing.T) {
	service, _ := newTakeService(t)
	var out bytes.Buffer

	_, err := playSession(takerContext(), service, 1, strings.NewReader(""), &out)
	require.ErrorIs(t, err, errQuit)
	require.Contains(t, out.String(), "Session abandoned.")
}

func TestPlaySessionEmptyQuiz(t *testing.T) {
	service, _ := newTakeService(t)
	var out bytes.Buffer

	_, err := playSession(takerContext(), service, 2, strings.NewReader(""), &out)
	require.ErrorIs(t, err, domain.ErrNoQuestions)
	require.Contains(t, out.String(), "No questions available for this quiz.")
}

func TestPlaySessionUnknownQuiz(t *testing.T) {
	service, _ := newTakeService(t)
	_, err := playSession(takerContext(), service, 42, strings.NewReader(""), &bytes.Buffer{})
	require.True(t, errors.Is(err, domain.ErrQuizNotFound))
}
