package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/runner"
)

type WSHandler struct {
	service  *app.SessionService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64  `json:"questionId"`
	AnswerID   int64  `json:"answerId"`
	Text       string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS runs one quiz session over a websocket. The identity middleware has
// already put the caller in the request context.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil || quizID <= 0 {
		http.Error(w, "missing or invalid quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	_ = conn.WriteJSON(outboundMessage[runner.Snapshot]{Type: "state", Payload: runner.Snapshot{State: runner.StateLoading, QuizID: quizID}})

	session, snap, err := h.service.Start(ctx, quizID)
	if errors.Is(err, domain.ErrNoQuestions) {
		_ = conn.WriteJSON(outboundMessage[runner.Snapshot]{Type: "state", Payload: snap})
		return
	}
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	log := h.log.WithField("session_id", session.ID)

	updates, cancel, err := h.service.Subscribe(ctx, session.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer func() {
		cancel()
		if err := h.service.Close(context.WithoutCancel(ctx), session.ID); err != nil {
			log.WithError(err).Debug("close session")
		}
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == 0 {
				fail(errors.New("invalid answer payload"))
				continue
			}
			resp := domain.Response{AnswerID: payload.AnswerID, Text: payload.Text}
			if _, err := h.service.Answer(ctx, session.ID, payload.QuestionID, resp); err != nil {
				fail(err)
			}
		case "next":
			if _, err := h.service.Advance(ctx, session.ID); err != nil {
				fail(err)
			}
		case "previous":
			if _, err := h.service.Retreat(ctx, session.ID); err != nil {
				fail(err)
			}
		case "submit":
			result, err := h.service.Submit(ctx, session.ID)
			if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
				fail(err)
				continue
			}
			reply(outboundMessage[any]{Type: "result", Payload: result})
		default:
			fail(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
