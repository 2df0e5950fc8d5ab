package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-session-runner/internal/domain"
)

func limit(s int) *int { return &s }

func choiceQuestion(id int64, order int, timeLimit *int, correctID int64) domain.Question {
	return domain.Question{
		ID:         id,
		Type:       domain.QuestionMultipleChoice,
		TimeLimit:  timeLimit,
		OrderIndex: order,
		Answers: []domain.Answer{
			{ID: correctID, Text: "right", IsCorrect: true},
			{ID: correctID + 100, Text: "wrong"},
		},
	}
}

func newRunner(t *testing.T, questions ...domain.Question) (*Runner, *ManualScheduler) {
	t.Helper()
	sched := &ManualScheduler{}
	r, err := New(domain.Quiz{ID: 1, Title: "Sample"}, questions, WithScheduler(sched))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, sched
}

func position(r *Runner) int {
	_, idx, _ := r.Current()
	return idx
}

func TestNewRejectsEmptyQuestionList(t *testing.T) {
	r, err := New(domain.Quiz{ID: 1}, nil, WithScheduler(&ManualScheduler{}))
	require.ErrorIs(t, err, domain.ErrNoQuestions)
	require.Nil(t, r)
}

func TestNewSortsByOrderIndex(t *testing.T) {
	input := []domain.Question{
		choiceQuestion(30, 2, nil, 3),
		choiceQuestion(10, 0, nil, 1),
		choiceQuestion(20, 1, nil, 2),
	}
	r, _ := newRunner(t, input...)

	var seen []int64
	for {
		q, _, _ := r.Current()
		seen = append(seen, q.ID)
		if !r.Advance() {
			break
		}
	}
	require.Equal(t, []int64{10, 20, 30}, seen)
	require.Equal(t, int64(30), input[0].ID, "caller slice must not be reordered")
}

func TestAdvanceStopsAtLastQuestion(t *testing.T) {
	r, _ := newRunner(t,
		choiceQuestion(1, 0, nil, 1),
		choiceQuestion(2, 1, nil, 2),
		choiceQuestion(3, 2, nil, 3),
		choiceQuestion(4, 3, nil, 4),
	)
	for i := 0; i < 3; i++ {
		require.True(t, r.Advance())
	}
	require.Equal(t, 3, position(r))
	require.False(t, r.Advance())
	require.Equal(t, 3, position(r))
}

func TestRetreatAtFirstQuestionIsNoop(t *testing.T) {
	r, sched := newRunner(t, choiceQuestion(1, 0, limit(10), 1), choiceQuestion(2, 1, nil, 2))
	r.Tick()
	armed := sched.Armed()

	require.False(t, r.Retreat())
	require.Equal(t, 0, position(r))
	remaining, ok := r.Remaining()
	require.True(t, ok)
	require.Equal(t, 9, remaining)
	require.Equal(t, armed, sched.Armed(), "retreat at index 0 must not re-arm the timer")
}

func TestTickWithoutTimeLimitNeverMoves(t *testing.T) {
	r, sched := newRunner(t, choiceQuestion(1, 0, nil, 1), choiceQuestion(2, 1, nil, 2))
	require.False(t, sched.Live())
	for i := 0; i < 100; i++ {
		r.Tick()
	}
	require.Equal(t, 0, position(r))
	_, ok := r.Remaining()
	require.False(t, ok)
}

func TestTimeoutAdvancesExactlyOnce(t *testing.T) {
	r, _ := newRunner(t,
		choiceQuestion(1, 0, limit(3), 1),
		choiceQuestion(2, 1, nil, 2),
		choiceQuestion(3, 2, nil, 3),
	)
	r.Tick()
	r.Tick()
	require.Equal(t, 0, position(r))
	r.Tick()
	require.Equal(t, 1, position(r))

	// The new question is unlimited, so further ticks do nothing.
	r.Tick()
	r.Tick()
	require.Equal(t, 1, position(r))
}

func TestTimeoutOnLastQuestionDoesNotSubmit(t *testing.T) {
	r, sched := newRunner(t, choiceQuestion(1, 0, nil, 1), choiceQuestion(2, 1, limit(2), 2))
	require.True(t, r.Advance())
	require.True(t, sched.Live())

	r.Tick()
	r.Tick()
	require.Equal(t, 1, position(r))
	_, submitted := r.Result()
	require.False(t, submitted)
	require.Equal(t, StateActive, r.State())
	require.False(t, sched.Live(), "expired countdown must release its timer")

	snap := r.Snapshot()
	require.True(t, snap.Expired)
	require.NotNil(t, snap.Remaining)
	require.Equal(t, 0, *snap.Remaining)

	r.Tick()
	require.Equal(t, 1, position(r))

	_, err := r.Submit()
	require.NoError(t, err)
}

func TestNavigationResetsCountdown(t *testing.T) {
	r, sched := newRunner(t,
		choiceQuestion(1, 0, limit(10), 1),
		choiceQuestion(2, 1, limit(5), 2),
		choiceQuestion(3, 2, nil, 3),
	)
	r.Tick()
	r.Tick()
	require.True(t, r.Advance())
	remaining, ok := r.Remaining()
	require.True(t, ok)
	require.Equal(t, 5, remaining)

	r.Tick()
	require.True(t, r.Retreat())
	remaining, ok = r.Remaining()
	require.True(t, ok)
	require.Equal(t, 10, remaining, "revisited question restarts at its full limit")

	require.True(t, r.Advance())
	require.True(t, r.Advance())
	_, ok = r.Remaining()
	require.False(t, ok)
	require.False(t, sched.Live())
}

func TestSchedulerFiresOnlyLiveTimer(t *testing.T) {
	r, sched := newRunner(t, choiceQuestion(1, 0, limit(2), 1), choiceQuestion(2, 1, limit(4), 2))
	require.True(t, sched.Fire())
	require.True(t, sched.Fire())
	require.Equal(t, 1, position(r))
	require.Equal(t, 2, sched.Armed())

	remaining, _ := r.Remaining()
	require.Equal(t, 4, remaining)
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	r, _ := newRunner(t, choiceQuestion(1, 0, limit(5), 1), choiceQuestion(2, 1, limit(5), 2))
	stale := r.generation
	require.True(t, r.Advance())

	r.onTick(stale)
	remaining, _ := r.Remaining()
	require.Equal(t, 5, remaining)
}

func TestSubmitRequiresLastQuestion(t *testing.T) {
	r, _ := newRunner(t, choiceQuestion(1, 0, nil, 1), choiceQuestion(2, 1, nil, 2))
	require.NoError(t, r.RecordAnswer(1, domain.ChoiceResponse(1)))

	_, err := r.Submit()
	require.ErrorIs(t, err, domain.ErrNotOnLastQuestion)
	_, submitted := r.Result()
	require.False(t, submitted)
}

func TestSubmitScoresAndFreezes(t *testing.T) {
	r, sched := newRunner(t,
		choiceQuestion(1, 0, nil, 11),
		choiceQuestion(2, 1, nil, 12),
		choiceQuestion(3, 2, limit(30), 13),
	)
	require.NoError(t, r.RecordAnswer(1, domain.ChoiceResponse(11)))
	require.NoError(t, r.RecordAnswer(2, domain.ChoiceResponse(112)))
	require.NoError(t, r.RecordAnswer(3, domain.ChoiceResponse(13)))
	r.Advance()
	r.Advance()

	result, err := r.Submit()
	require.NoError(t, err)
	require.Equal(t, domain.Result{Correct: 2, Total: 3, Percentage: 67}, result)
	require.Equal(t, StateSubmitted, r.State())
	require.False(t, sched.Live())

	require.ErrorIs(t, r.RecordAnswer(2, domain.ChoiceResponse(12)), domain.ErrAlreadySubmitted)
	require.False(t, r.Retreat())

	again, err := r.Submit()
	require.ErrorIs(t, err, domain.ErrAlreadySubmitted)
	require.Equal(t, result, again)
}

func TestRecordAnswerOverwrites(t *testing.T) {
	r, _ := newRunner(t, choiceQuestion(1, 0, nil, 1))
	require.NoError(t, r.RecordAnswer(1, domain.ChoiceResponse(101)))
	require.NoError(t, r.AnswerCurrent(domain.ChoiceResponse(1)))

	resp, ok := r.Response(1)
	require.True(t, ok)
	require.Equal(t, domain.ChoiceResponse(1), resp)

	result, err := r.Submit()
	require.NoError(t, err)
	require.Equal(t, 1, result.Correct)
}

func TestAnswerCurrentLandsOnShownQuestionDuringTimeout(t *testing.T) {
	for i := 0; i < 200; i++ {
		r, sched := newRunner(t, choiceQuestion(1, 0, limit(1), 11), choiceQuestion(2, 1, nil, 21))
		updates, cancel := r.Subscribe()
		<-updates

		done := make(chan struct{})
		go func() {
			sched.Fire()
			close(done)
		}()
		require.NoError(t, r.AnswerCurrent(domain.ChoiceResponse(7)))
		<-done
		cancel()

		var answered *Snapshot
		for snap := range updates {
			if len(snap.Responses) > 0 {
				answered = &snap
				break
			}
		}
		require.NotNil(t, answered)
		require.Len(t, answered.Responses, 1)
		_, ok := answered.Responses[int64(answered.Position)]
		require.True(t, ok, "answer recorded off the question shown at position %d: %v", answered.Position, answered.Responses)
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	r, sched := newRunner(t, choiceQuestion(1, 0, limit(3), 1))
	updates, cancel := r.Subscribe()
	defer cancel()

	initial := <-updates
	require.Equal(t, 3, *initial.Remaining)
	require.Nil(t, initial.Result)

	sched.Fire()
	select {
	case snap := <-updates:
		require.Equal(t, 2, *snap.Remaining)
	case <-time.After(time.Second):
		t.Fatal("expected snapshot after tick")
	}
}

func TestCloseReleasesTimerAndSubscribers(t *testing.T) {
	sched := &ManualScheduler{}
	r, err := New(domain.Quiz{ID: 1}, []domain.Question{choiceQuestion(1, 0, limit(3), 1)}, WithScheduler(sched))
	require.NoError(t, err)
	updates, _ := r.Subscribe()
	<-updates

	r.Close()
	require.False(t, sched.Live())
	_, open := <-updates
	require.False(t, open)
}

func TestTickerSchedulerDrivesCountdown(t *testing.T) {
	if testing.Short() {
		t.Skip("uses wall-clock ticker")
	}
	var s TickerScheduler
	fired := make(chan struct{}, 4)
	h := s.Every(10*time.Millisecond, func() { fired <- struct{}{} })
	defer h.Cancel()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ticker never fired")
	}
	h.Cancel()
	h.Cancel()
}
