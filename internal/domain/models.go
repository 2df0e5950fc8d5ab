package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// QuestionType is the presentation and scoring kind of a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// IsChoice reports whether responses to this type are answer ids.
func (t QuestionType) IsChoice() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// Answer is one candidate response to a question.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id,omitempty"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question is one prompt of a quiz. TimeLimit is nil for unlimited questions.
type Question struct {
	ID         int64        `json:"id"`
	QuizID     int64        `json:"quiz_id,omitempty"`
	Text       string       `json:"text,omitempty"`
	Type       QuestionType `json:"type"`
	TimeLimit  *int         `json:"time_limit,omitempty"`
	OrderIndex int          `json:"order_index"`
	MediaID    *int64       `json:"media_id,omitempty"`
	Answers    []Answer     `json:"answers"`
}

// CorrectAnswer returns the first answer flagged correct.
func (q Question) CorrectAnswer() (Answer, bool) {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return a, true
		}
	}
	return Answer{}, false
}

// Quiz is a named, ordered collection of questions. Questions may be empty when
// the source delivers them separately.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsPublic    bool       `json:"is_public"`
	AuthorID    int64      `json:"author_id"`
	CreatedAt   Timestamp  `json:"created_at"`
	Questions   []Question `json:"questions,omitempty"`
}

// Response is what a taker recorded for a question: an answer id for choice
// questions, free text for short answers.
type Response struct {
	AnswerID int64  `json:"answerId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ChoiceResponse records the selection of an answer.
func ChoiceResponse(answerID int64) Response {
	return Response{AnswerID: answerID}
}

// TextResponse records free text.
func TextResponse(text string) Response {
	return Response{Text: text}
}

// Result is the scored outcome of a submitted session.
type Result struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Attempt is a persisted, submitted session.
type Attempt struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	QuizID      int64     `json:"quizId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	StartedAt   time.Time `json:"startedAt"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO form some backends emit.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
