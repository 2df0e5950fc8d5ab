package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-session-runner/internal/domain"
)

func TestAttemptStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.db")
	store, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveAttempt(ctx, domain.Attempt{
		ID: "a1", SessionID: "s1", QuizID: 7, UserID: "u1", Username: "alice",
		Correct: 2, Total: 3, Percentage: 67, StartedAt: started, SubmittedAt: started.Add(time.Minute),
	}))
	require.NoError(t, store.SaveAttempt(ctx, domain.Attempt{
		ID: "a2", SessionID: "s2", QuizID: 7, UserID: "u2",
		Correct: 3, Total: 3, Percentage: 100, StartedAt: started, SubmittedAt: started.Add(time.Hour),
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	attempts, err := reopened.ListAttempts(ctx, 7)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, "a2", attempts[0].ID)
	require.Equal(t, 67, attempts[1].Percentage)
	require.True(t, attempts[1].StartedAt.Equal(started))

	none, err := reopened.ListAttempts(ctx, 8)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAttemptStoreRejectsDuplicateID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "attempts.db"))
	require.NoError(t, err)
	defer store.Close()

	a := domain.Attempt{ID: "dup", SessionID: "s", QuizID: 1, UserID: "u", StartedAt: time.Now(), SubmittedAt: time.Now()}
	require.NoError(t, store.SaveAttempt(context.Background(), a))
	require.Error(t, store.SaveAttempt(context.Background(), a))
}
