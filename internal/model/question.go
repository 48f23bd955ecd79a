package model

import (
	"github.com/google/uuid"
)

// Option is a single answer choice.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single-correct-answer multiple choice question.
type Question struct {
	ID              uuid.UUID `json:"id"`
	ExamID          uuid.UUID `json:"exam_id"`
	Text            string    `json:"text"`
	Options         []Option  `json:"options"`
	CorrectOptionID string    `json:"correct_option_id"`
	Marks           float64   `json:"marks"`
	OrderNum        int       `json:"order_num"`
}

// ForStudent strips the grading fields for delivery to the exam shell.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		OrderNum: q.OrderNum,
	}
}
