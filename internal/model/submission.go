package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the states of an exam attempt.
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusCompleted  SubmissionStatus = "COMPLETED"
)

// Submission is the authoritative record of an exam attempt, keyed uniquely
// by (exam_id, student_id). All writes are upserts — never plain inserts —
// so retries overwrite with equivalent data instead of duplicating rows.
type Submission struct {
	ID                 uuid.UUID         `json:"id"`
	ExamID             uuid.UUID         `json:"exam_id"`
	StudentID          int               `json:"student_id"`
	Answers            map[string]string `json:"answers"` // question id → chosen option id
	Status             SubmissionStatus  `json:"status"`
	Score              float64           `json:"score"` // 0–100, 2 decimals
	MarksObtained      float64           `json:"marks_obtained"`
	TotalPossibleMarks float64           `json:"total_possible_marks"`
	StartedAt          time.Time         `json:"started_at"`
	SubmittedAt        *time.Time        `json:"submitted_at,omitempty"`
}

// SubmitResult is returned to the shell after a confirmed submission.
type SubmitResult struct {
	SubmissionID       uuid.UUID `json:"submission_id"`
	Score              float64   `json:"score"`
	MarksObtained      float64   `json:"marks_obtained"`
	TotalPossibleMarks float64   `json:"total_possible_marks"`
}
