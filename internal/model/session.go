package model

import (
	"github.com/google/uuid"
)

// Stage enumerates the proctored session lifecycle. Transitions are
// one-directional; Error and SecurityChecksFailed are terminal and reachable
// from any stage.
type Stage string

const (
	StageInitializing             Stage = "initializing"
	StageValidatingToken          Stage = "validatingToken"
	StageFetchingDetails          Stage = "fetchingDetails"
	StageReadyToStart             Stage = "readyToStart"
	StagePerformingSecurityChecks Stage = "performingSecurityChecks"
	StageStartingExamSession      Stage = "startingExamSession"
	StageExamInProgress           Stage = "examInProgress"
	StageSubmittingExam           Stage = "submittingExam"
	StageExamCompleted            Stage = "examCompleted"
	StageError                    Stage = "error"
	StageSecurityChecksFailed     Stage = "securityChecksFailed"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageExamCompleted || s == StageError || s == StageSecurityChecksFailed
}

// SessionState is the reload-safe view of a running session returned to the
// shell: everything it needs to rebuild the exam screen.
type SessionState struct {
	ExamID          uuid.UUID         `json:"exam_id"`
	StudentID       int               `json:"student_id"`
	Stage           Stage             `json:"stage"`
	Answers         map[string]string `json:"answers"`
	MarkedForReview []string          `json:"marked_for_review"`
	QuestionIndex   int               `json:"question_index"`
	TimeLeftSeconds int               `json:"time_left_seconds"`
}

// LaunchBundle is the response of the launch endpoint: the verified identity
// plus exam data, or the short-circuit signal for an already-finished attempt.
type LaunchBundle struct {
	Student            *Student     `json:"student"`
	Exam               *ExamPayload `json:"exam"`
	Stage              Stage        `json:"stage"`
	IsAlreadySubmitted bool         `json:"is_already_submitted"`
}
