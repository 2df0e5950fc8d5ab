package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/runner"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error    string           `json:"error"`
	Snapshot *runner.Snapshot `json:"snapshot,omitempty"`
}

type sessionResponse struct {
	SessionID string          `json:"sessionId"`
	Snapshot  runner.Snapshot `json:"snapshot"`
}

type resultResponse struct {
	Result   domain.Result   `json:"result"`
	Snapshot runner.Snapshot `json:"snapshot"`
}

// API exposes the session use cases over REST.
type API struct {
	service *app.SessionService
	log     logrus.FieldLogger
}

func NewAPI(service *app.SessionService, log logrus.FieldLogger) *API {
	return &API{service: service, log: log}
}

// NewRouter mounts the REST API and the websocket endpoint.
func NewRouter(api *API, ws *WSHandler, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity(time.Now))

		r.Get("/ws", ws.ServeWS)

		r.Route("/quizzes/{quizID}", func(r chi.Router) {
			r.Get("/", api.getQuiz)
			r.Get("/attempts", api.listAttempts)
			r.Post("/sessions", api.startSession)
		})
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", api.getSession)
			r.Delete("/", api.closeSession)
			r.Put("/responses/{questionID}", api.recordResponse)
			r.Post("/next", api.advance)
			r.Post("/previous", api.retreat)
			r.Post("/submit", api.submit)
		})
	})
	return r
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, err := idParam(r, "quizID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz, err := a.service.Quiz(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	questions := make([]domain.QuestionView, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, q.View())
	}
	render.JSON(w, r, struct {
		domain.QuizView
		Questions []domain.QuestionView `json:"questions"`
	}{quiz.View(), questions})
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	quizID, err := idParam(r, "quizID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempts, err := a.service.Attempts(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	render.JSON(w, r, attempts)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	quizID, err := idParam(r, "quizID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	session, snap, err := a.service.Start(r.Context(), quizID)
	if errors.Is(err, domain.ErrNoQuestions) {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Error: err.Error(), Snapshot: &snap})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sessionResponse{SessionID: session.ID, Snapshot: snap})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	writeSnapshot(w, r, snap, err)
}

func (a *API) recordResponse(w http.ResponseWriter, r *http.Request) {
	questionID, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var resp domain.Response
	if err := render.DecodeJSON(r.Body, &resp); err != nil {
		writeError(w, r, errBadRequest)
		return
	}
	if resp.AnswerID == 0 && resp.Text == "" {
		writeError(w, r, errBadRequest)
		return
	}
	snap, err := a.service.Answer(r.Context(), chi.URLParam(r, "sessionID"), questionID, resp)
	writeSnapshot(w, r, snap, err)
}

func (a *API) advance(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Advance(r.Context(), chi.URLParam(r, "sessionID"))
	writeSnapshot(w, r, snap, err)
}

func (a *API) retreat(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Retreat(r.Context(), chi.URLParam(r, "sessionID"))
	writeSnapshot(w, r, snap, err)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	result, err := a.service.Submit(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := a.service.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resultResponse{Result: result, Snapshot: snap})
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest
	}
	return id, nil
}

func writeSnapshot(w http.ResponseWriter, r *http.Request, snap runner.Snapshot, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusFor(err))
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOnLastQuestion), errors.Is(err, domain.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoQuestions):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
