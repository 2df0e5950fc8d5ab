package runner

import (
	"math"

	"quiz-session-runner/internal/domain"
)

// Score grades responses against questions. Unanswered questions, choice
// questions without a flagged answer, short answers and unknown types all
// contribute zero. total must be non-zero.
func Score(questions []domain.Question, responses map[int64]domain.Response) domain.Result {
	correct := 0
	for _, q := range questions {
		resp, ok := responses[q.ID]
		if !ok {
			continue
		}
		if scoreQuestion(q, resp) {
			correct++
		}
	}
	total := len(questions)
	return domain.Result{
		Correct:    correct,
		Total:      total,
		Percentage: percentage(correct, total),
	}
}

func scoreQuestion(q domain.Question, resp domain.Response) bool {
	switch {
	case q.Type.IsChoice():
		answer, ok := q.CorrectAnswer()
		return ok && resp.AnswerID == answer.ID
	case q.Type == domain.QuestionShortAnswer:
		// Short answers have no grading rule yet and never earn credit.
		return false
	default:
		return false
	}
}

func percentage(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
