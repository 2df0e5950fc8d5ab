// Package runner drives a single timed walk through a quiz: ordered
// navigation, a per-question countdown, response capture and scoring.
package runner

import (
	"sort"
	"sync"
	"time"

	"quiz-session-runner/internal/domain"
)

const tickInterval = time.Second

// State is the lifecycle state of a session as seen by a host.
type State string

const (
	StateLoading   State = "loading"
	StateActive    State = "active"
	StateSubmitted State = "submitted"
	StateEmpty     State = "empty"
)

// Snapshot is a point-in-time view of a runner, safe to hand to a UI.
type Snapshot struct {
	State     State                     `json:"state"`
	QuizID    int64                     `json:"quizId,omitempty"`
	QuizTitle string                    `json:"quizTitle,omitempty"`
	Question  *domain.QuestionView      `json:"question,omitempty"`
	Position  int                       `json:"position,omitempty"` // 1-based
	Total     int                       `json:"total,omitempty"`
	Remaining *int                      `json:"remaining"` // nil while unlimited
	Expired   bool                      `json:"expired,omitempty"`
	Responses map[int64]domain.Response `json:"responses,omitempty"`
	Result    *domain.Result            `json:"result,omitempty"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithScheduler replaces the wall-clock ticker, e.g. with a ManualScheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Runner) { r.scheduler = s }
}

// Runner owns the state of one quiz-taking attempt. All methods are safe for
// concurrent use; each event runs to completion before the next.
type Runner struct {
	mu sync.Mutex

	quiz      domain.Quiz
	questions []domain.Question
	current   int
	responses map[int64]domain.Response

	timed     bool
	remaining int
	expired   bool

	submitted bool
	result    domain.Result

	scheduler  Scheduler
	timer      TimerHandle
	generation uint64
	closed     bool

	subscribers map[chan Snapshot]struct{}
}

// New sorts questions by order index and starts the countdown of the first
// one. An empty question list yields domain.ErrNoQuestions.
func New(quiz domain.Quiz, questions []domain.Question, opts ...Option) (*Runner, error) {
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	sorted := make([]domain.Question, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderIndex < sorted[j].OrderIndex
	})

	r := &Runner{
		quiz:        quiz,
		questions:   sorted,
		responses:   make(map[int64]domain.Response),
		scheduler:   TickerScheduler{},
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mu.Lock()
	r.armTimerLocked()
	r.mu.Unlock()
	return r, nil
}

// RecordAnswer stores or overwrites the response for a question. The value is
// not checked against the question's answers.
func (r *Runner) RecordAnswer(questionID int64, resp domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordLocked(questionID, resp)
}

// AnswerCurrent records a response for the question shown at the moment the
// lock is taken, so a concurrent timeout cannot redirect it.
func (r *Runner) AnswerCurrent(resp domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordLocked(r.questions[r.current].ID, resp)
}

func (r *Runner) recordLocked(questionID int64, resp domain.Response) error {
	if r.submitted {
		return domain.ErrAlreadySubmitted
	}
	r.responses[questionID] = resp
	r.broadcastLocked()
	return nil
}

func (r *Runner) Advance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	moved := r.advanceLocked()
	if moved {
		r.broadcastLocked()
	}
	return moved
}

// Retreat moves to the previous question, restarting its full countdown. It
// reports false on the first question and after submission.
func (r *Runner) Retreat() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitted || r.current == 0 {
		return false
	}
	r.current--
	r.armTimerLocked()
	r.broadcastLocked()
	return true
}

// Tick consumes one second of the active countdown.
func (r *Runner) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tickLocked() {
		r.broadcastLocked()
	}
}

// Submit scores the session. It is rejected before the last question is
// reached. A second call returns the stored result with ErrAlreadySubmitted.
func (r *Runner) Submit() (domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitted {
		return r.result, domain.ErrAlreadySubmitted
	}
	if r.current != len(r.questions)-1 {
		return domain.Result{}, domain.ErrNotOnLastQuestion
	}

	r.result = Score(r.questions, r.responses)
	r.submitted = true
	r.cancelTimerLocked()
	r.broadcastLocked()
	return r.result, nil
}

// Close releases the timer and closes subscriber channels.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancelTimerLocked()
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// Current returns the active question with its zero-based position and the total.
func (r *Runner) Current() (domain.Question, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.questions[r.current], r.current, len(r.questions)
}

// Remaining returns the seconds left on the current question; ok is false when
// the question is unlimited.
func (r *Runner) Remaining() (seconds int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.timed
}

// Result returns the result once submitted.
func (r *Runner) Result() (domain.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.submitted
}

// Response returns the recorded response for a question.
func (r *Runner) Response(questionID int64) (domain.Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[questionID]
	return resp, ok
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitted {
		return StateSubmitted
	}
	return StateActive
}

func (r *Runner) Quiz() domain.Quiz {
	return r.quiz
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every state change,
// starting with the current one. The caller must invoke cancel.
func (r *Runner) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	ch <- r.snapshotLocked()
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Runner) advanceLocked() bool {
	if r.submitted || r.current >= len(r.questions)-1 {
		return false
	}
	r.current++
	r.armTimerLocked()
	return true
}

func (r *Runner) tickLocked() bool {
	if r.submitted || !r.timed || r.expired {
		return false
	}
	r.remaining--
	if r.remaining > 0 {
		return true
	}
	if r.advanceLocked() {
		return true
	}
	// Time ran out on the last question: stay, never auto-submit.
	r.remaining = 0
	r.expired = true
	r.cancelTimerLocked()
	return true
}

func (r *Runner) onTick(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return
	}
	if r.tickLocked() {
		r.broadcastLocked()
	}
}

// armTimerLocked resets the countdown to the current question's own limit.
func (r *Runner) armTimerLocked() {
	r.cancelTimerLocked()
	r.expired = false

	q := r.questions[r.current]
	if q.TimeLimit == nil || *q.TimeLimit <= 0 {
		r.timed = false
		r.remaining = 0
		return
	}
	r.timed = true
	r.remaining = *q.TimeLimit
	if r.closed {
		return
	}

	generation := r.generation
	r.timer = r.scheduler.Every(tickInterval, func() { r.onTick(generation) })
}

func (r *Runner) cancelTimerLocked() {
	if r.timer != nil {
		r.timer.Cancel()
		r.timer = nil
	}
	r.generation++
}

func (r *Runner) broadcastLocked() {
	if len(r.subscribers) == 0 {
		return
	}
	snap := r.snapshotLocked()
	for ch := range r.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so slow readers never block the runner.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (r *Runner) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     StateActive,
		QuizID:    r.quiz.ID,
		QuizTitle: r.quiz.Title,
		Position:  r.current + 1,
		Total:     len(r.questions),
		Expired:   r.expired,
		Responses: make(map[int64]domain.Response, len(r.responses)),
	}
	for id, resp := range r.responses {
		snap.Responses[id] = resp
	}
	if r.submitted {
		result := r.result
		snap.State = StateSubmitted
		snap.Result = &result
		return snap
	}
	view := r.questions[r.current].View()
	snap.Question = &view
	if r.timed {
		remaining := r.remaining
		snap.Remaining = &remaining
	}
	return snap
}
