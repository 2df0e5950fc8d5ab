package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
)

// requireIdentity resolves the caller from a bearer token (header or ?token=)
// or, for guests, from the userId and name query parameters.
func requireIdentity(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identityFromRequest(r, now())
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

func identityFromRequest(r *http.Request, now time.Time) (auth.Identity, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token != "" {
		id, err := auth.FromToken(token, now)
		if err != nil {
			return auth.Identity{}, domain.ErrUnauthorized
		}
		return id, nil
	}

	id := auth.Identity{
		UserID:   r.URL.Query().Get("userId"),
		Username: r.URL.Query().Get("name"),
	}
	if !id.Valid() {
		return auth.Identity{}, domain.ErrUnauthorized
	}
	return id, nil
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
			}).Info("http request")
		})
	}
}
