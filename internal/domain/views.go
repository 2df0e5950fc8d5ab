package domain

// AnswerView is an answer as shown to a quiz taker: the correctness flag is withheld.
type AnswerView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question as shown to a quiz taker.
type QuestionView struct {
	ID         int64        `json:"id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	TimeLimit  *int         `json:"timeLimit,omitempty"`
	OrderIndex int          `json:"orderIndex"`
	Answers    []AnswerView `json:"answers"`
}

// QuizView is the public summary of a quiz.
type QuizView struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"questionCount"`
}

func (q Question) View() QuestionView {
	answers := make([]AnswerView, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, AnswerView{ID: a.ID, Text: a.Text})
	}
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		TimeLimit:  q.TimeLimit,
		OrderIndex: q.OrderIndex,
		Answers:    answers,
	}
}

func (q Quiz) View() QuizView {
	return QuizView{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		QuestionCount: len(q.Questions),
	}
}
