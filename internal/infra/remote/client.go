// Package remote is the client of the quiz REST API that owns quizzes,
// questions, answers and session records.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second
	pageSize       = 100
)

// APIError is a non-2xx answer of the quiz API.
type APIError struct {
	Status int
	Detail []string
}

func (e *APIError) Error() string {
	if len(e.Detail) == 0 {
		return fmt.Sprintf("quiz api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("quiz api: %d %s", e.Status, strings.Join(e.Detail, ", "))
}

// Client talks to the quiz API. The bearer token is taken from the identity in
// the request context, falling back to the client's own token.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

// WithToken sets the token used when the context carries no identity.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQuiz returns a quiz record; questions are only present if the API embeds them.
func (c *Client) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+strconv.FormatInt(quizID, 10), nil, nil, &quiz)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, err
}

// ListQuizzes returns one page of quizzes.
func (c *Client) ListQuizzes(ctx context.Context, skip, limit int) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	query := url.Values{"skip": {strconv.Itoa(skip)}, "limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/quizzes/", query, nil, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

// ListQuestions returns one page of a quiz's questions with nested answers.
func (c *Client) ListQuestions(ctx context.Context, quizID int64, skip, limit int) ([]domain.Question, error) {
	var questions []domain.Question
	query := url.Values{
		"quiz_id": {strconv.FormatInt(quizID, 10)},
		"skip":    {strconv.Itoa(skip)},
		"limit":   {strconv.Itoa(limit)},
	}
	if err := c.do(ctx, http.MethodGet, "/questions/", query, nil, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// LoadQuiz fetches the quiz and all of its questions concurrently. Questions
// embedded in the quiz record win over the separate listing.
func (c *Client) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		questions []domain.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quiz, err = c.GetQuiz(gctx, quizID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = c.allQuestions(gctx, quizID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Quiz{}, err
	}
	if len(quiz.Questions) == 0 {
		quiz.Questions = questions
	}
	return quiz, nil
}

func (c *Client) allQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var all []domain.Question
	for skip := 0; ; skip += pageSize {
		page, err := c.ListQuestions(ctx, quizID, skip, pageSize)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) bearer(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok && id.Token != "" {
		return id.Token
	}
	return c.token
}

// decodeAPIError understands both {"detail": "msg"} and the validation form
// {"detail": [{"msg": "..."}]}.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(data, &payload) != nil || len(payload.Detail) == 0 {
		return apiErr
	}

	var text string
	if json.Unmarshal(payload.Detail, &text) == nil {
		apiErr.Detail = []string{text}
		return apiErr
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(payload.Detail, &items) == nil {
		for _, item := range items {
			apiErr.Detail = append(apiErr.Detail, item.Msg)
		}
	}
	return apiErr
}
