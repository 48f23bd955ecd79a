package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam definition as stored in PostgreSQL.
type Exam struct {
	ID                      uuid.UUID  `json:"id"`
	Title                   string     `json:"title"`
	DurationMinutes         int        `json:"duration_minutes"`
	AllowBacktracking       bool       `json:"allow_backtracking"`
	WebcamProctoringEnabled bool       `json:"webcam_proctoring_enabled"`
	ScheduledStart          *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd            *time.Time `json:"scheduled_end,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// ExamPayload is the student-facing exam bundle. It never carries correct
// option ids or marks — scoring data stays server-side.
type ExamPayload struct {
	ExamID                  uuid.UUID            `json:"exam_id"`
	Title                   string               `json:"title"`
	DurationMinutes         int                  `json:"duration_minutes"`
	AllowBacktracking       bool                 `json:"allow_backtracking"`
	WebcamProctoringEnabled bool                 `json:"webcam_proctoring_enabled"`
	Questions               []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question stripped of its correct answer and marks.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Options  []Option  `json:"options"`
	OrderNum int       `json:"order_num"`
}
