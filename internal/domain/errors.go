package domain

import "errors"

var (
	// ErrNoQuestions is returned when a session is opened for a quiz without questions.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrNotOnLastQuestion is returned when submit is attempted before the last question is reached.
	ErrNotOnLastQuestion = errors.New("submit is only allowed on the last question")
	// ErrAlreadySubmitted is returned for any mutation after a session was submitted.
	ErrAlreadySubmitted = errors.New("session already submitted")
	// ErrSessionNotFound is returned when a quiz session does not exist (or was closed).
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrForbidden is returned when a user acts on a session owned by someone else.
	ErrForbidden = errors.New("session belongs to another user")
	// ErrUnauthorized indicates a missing or rejected identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
