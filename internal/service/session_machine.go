package service

import (
	"errors"
	"fmt"

	"github.com/vigilcbt/vigil-backend/internal/model"
)

// SessionEvent drives the session lifecycle state machine.
type SessionEvent string

const (
	EventValidateToken    SessionEvent = "VALIDATE_TOKEN"
	EventTokenValid       SessionEvent = "TOKEN_VALID"
	EventAlreadySubmitted SessionEvent = "ALREADY_SUBMITTED"
	EventDetailsFetched   SessionEvent = "DETAILS_FETCHED"
	EventBeginChecks      SessionEvent = "BEGIN_CHECKS"
	EventChecksPassed     SessionEvent = "CHECKS_PASSED"
	EventChecksFailed     SessionEvent = "CHECKS_FAILED"
	EventSessionStarted   SessionEvent = "SESSION_STARTED"
	EventSubmit           SessionEvent = "SUBMIT"
	EventSubmitConfirmed  SessionEvent = "SUBMIT_CONFIRMED"
	EventSubmitFailed     SessionEvent = "SUBMIT_FAILED"
	EventFatalError       SessionEvent = "FATAL_ERROR"
)

// ErrInvalidTransition is returned when an event is not legal in the
// current stage. Callers treat it as a stage-guard rejection, not a crash.
var ErrInvalidTransition = errors.New("invalid session transition")

// transitions is the one-directional lifecycle table. Anything not listed
// is illegal; EventFatalError is handled separately since it is legal from
// every non-terminal stage.
var transitions = map[model.Stage]map[SessionEvent]model.Stage{
	model.StageInitializing: {
		EventValidateToken: model.StageValidatingToken,
	},
	model.StageValidatingToken: {
		EventTokenValid: model.StageFetchingDetails,
		// Completed attempts are never reattempted: skip straight past
		// readyToStart so the shell shows the "already submitted" screen.
		EventAlreadySubmitted: model.StageExamCompleted,
	},
	model.StageFetchingDetails: {
		EventDetailsFetched: model.StageReadyToStart,
	},
	model.StageReadyToStart: {
		// BEGIN_CHECKS is only legal here, so the battery can never run
		// twice for one session.
		EventBeginChecks: model.StagePerformingSecurityChecks,
	},
	model.StagePerformingSecurityChecks: {
		EventChecksPassed: model.StageStartingExamSession,
		EventChecksFailed: model.StageSecurityChecksFailed,
	},
	model.StageStartingExamSession: {
		EventSessionStarted: model.StageExamInProgress,
	},
	model.StageExamInProgress: {
		EventSubmit: model.StageSubmittingExam,
	},
	model.StageSubmittingExam: {
		EventSubmitConfirmed: model.StageExamCompleted,
		// A failed submit keeps the session visually in submittingExam;
		// answers are preserved and the shell may retry.
		EventSubmitFailed: model.StageSubmittingExam,
	},
}

// Transition is the pure state machine: (stage, event) -> stage'.
// It performs no side effects; SessionService dispatches those.
func Transition(stage model.Stage, event SessionEvent) (model.Stage, error) {
	if event == EventFatalError {
		if stage.Terminal() {
			return stage, fmt.Errorf("%w: %s in terminal stage %s", ErrInvalidTransition, event, stage)
		}
		return model.StageError, nil
	}

	if next, ok := transitions[stage][event]; ok {
		return next, nil
	}
	return stage, fmt.Errorf("%w: %s in stage %s", ErrInvalidTransition, event, stage)
}
