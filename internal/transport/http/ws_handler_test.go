package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/infra/memory"
	"quiz-session-runner/internal/logging"
	"quiz-session-runner/internal/runner"
)

func TestWebSocketSessionFlow(t *testing.T) {
	server, scheduler := newTestServer(t)

	conn := dial(t, server, "/ws?quizId=1&userId=u1&name=Alice")
	defer conn.Close()

	_, loading := readState(t, conn)
	if loading.State != runner.StateLoading {
		t.Fatalf("expected loading first, got %s", loading.State)
	}
	_, first := readState(t, conn)
	if first.State != runner.StateActive || first.Position != 1 || first.Question.ID != 1 {
		t.Fatalf("unexpected first snapshot %+v", first)
	}
	if first.Remaining == nil || *first.Remaining != 2 {
		t.Fatalf("expected 2 seconds remaining, got %v", first.Remaining)
	}

	send(t, conn, "answer", map[string]any{"questionId": 1, "answerId": 11})
	readUntil(t, conn, func(typ string, snap runner.Snapshot) bool {
		return typ == "state" && snap.Responses[1].AnswerID == 11
	})

	// Running out of time moves on to the second question.
	scheduler.Fire()
	scheduler.Fire()
	readUntil(t, conn, func(typ string, snap runner.Snapshot) bool {
		return typ == "state" && snap.Position == 2
	})

	send(t, conn, "submit", nil)
	raw := readUntil(t, conn, func(typ string, _ runner.Snapshot) bool { return typ == "result" })
	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result != (domain.Result{Correct: 1, Total: 2, Percentage: 50}) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestWebSocketRejectsEarlySubmit(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "/ws?quizId=1&userId=u1&name=Alice")
	defer conn.Close()

	readState(t, conn)
	readState(t, conn)

	send(t, conn, "submit", nil)
	raw := readUntil(t, conn, func(typ string, _ runner.Snapshot) bool { return typ == "error" })
	if !strings.Contains(string(raw), "last question") {
		t.Fatalf("unexpected error payload %s", raw)
	}

	send(t, conn, "dance", nil)
	readUntil(t, conn, func(typ string, _ runner.Snapshot) bool { return typ == "error" })
}

func TestWebSocketEmptyQuiz(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "/ws?quizId=2&userId=u1&name=Alice")
	defer conn.Close()

	readState(t, conn)
	_, snap := readState(t, conn)
	if snap.State != runner.StateEmpty {
		t.Fatalf("expected empty state, got %+v", snap)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	server, _ := newTestServer(t)
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?quizId=1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *runner.ManualScheduler) {
	t.Helper()
	scheduler := &runner.ManualScheduler{}
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewSessionService(quizRepo, memory.NewSessionStore(), memory.NewAttemptStore(),
		app.WithScheduler(scheduler),
		app.WithLogger(logging.Discard()),
	)
	log := logging.Discard()
	server := httptest.NewServer(NewRouter(NewAPI(service, log), NewWSHandler(service, log), log))
	t.Cleanup(server.Close)
	return server, scheduler
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

func readState(t *testing.T, conn *websocket.Conn) (string, runner.Snapshot) {
	t.Helper()
	typ, raw := readNext(t, conn)
	if typ != "state" {
		t.Fatalf("expected state message, got %s: %s", typ, raw)
	}
	var snap runner.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return typ, snap
}

// readUntil skips messages until match accepts one and returns its raw payload.
func readUntil(t *testing.T, conn *websocket.Conn, match func(string, runner.Snapshot) bool) json.RawMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, raw := readNext(t, conn)
		var snap runner.Snapshot
		if typ == "state" {
			_ = json.Unmarshal(raw, &snap)
		}
		if match(typ, snap) {
			return raw
		}
	}
	t.Fatalf("expected message not received")
	return nil
}

func sampleQuizzes() map[int64]domain.Quiz {
	two := 2
	return map[int64]domain.Quiz{
		1: {
			ID:    1,
			Title: "Basics",
			Questions: []domain.Question{
				{
					ID:         2,
					Text:       "Pick the prime",
					Type:       domain.QuestionMultipleChoice,
					OrderIndex: 1,
					Answers: []domain.Answer{
						{ID: 21, Text: "4"},
						{ID: 22, Text: "7", IsCorrect: true},
					},
				},
				{
					ID:         1,
					Text:       "2 + 2 = 4",
					Type:       domain.QuestionTrueFalse,
					TimeLimit:  &two,
					OrderIndex: 0,
					Answers: []domain.Answer{
						{ID: 11, Text: "True", IsCorrect: true},
						{ID: 12, Text: "False"},
					},
				},
			},
		},
		2: {ID: 2, Title: "Empty"},
	}
}
