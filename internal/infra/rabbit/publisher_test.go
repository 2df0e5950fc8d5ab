package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"quiz-session-runner/internal/domain"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishAttemptRoutesByQuiz(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, DefaultExchange)

	attempt := domain.Attempt{ID: "a1", QuizID: 42, UserID: "u1", Correct: 2, Total: 3, Percentage: 67}
	require.NoError(t, p.PublishAttempt(context.Background(), attempt))

	require.Equal(t, "quiz.attempts", ch.exchange)
	require.Equal(t, "attempt.completed.42", ch.key)
	require.Equal(t, "application/json", ch.msg.ContentType)
	require.Equal(t, "a1", ch.msg.MessageId)

	var decoded domain.Attempt
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	require.Equal(t, 67, decoded.Percentage)

	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}

func TestPublishAttemptWrapsBrokerError(t *testing.T) {
	boom := errors.New("channel closed")
	p := newPublisher(&fakeChannel{err: boom}, DefaultExchange)
	err := p.PublishAttempt(context.Background(), domain.Attempt{ID: "a1"})
	require.ErrorIs(t, err, boom)
}
