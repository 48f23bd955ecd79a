package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		event SessionEvent
		want  model.Stage
	}{
		{EventValidateToken, model.StageValidatingToken},
		{EventTokenValid, model.StageFetchingDetails},
		{EventDetailsFetched, model.StageReadyToStart},
		{EventBeginChecks, model.StagePerformingSecurityChecks},
		{EventChecksPassed, model.StageStartingExamSession},
		{EventSessionStarted, model.StageExamInProgress},
		{EventSubmit, model.StageSubmittingExam},
		{EventSubmitConfirmed, model.StageExamCompleted},
	}

	stage := model.StageInitializing
	for _, step := range steps {
		next, err := Transition(stage, step.event)
		require.NoError(t, err, "event %s from %s", step.event, stage)
		require.Equal(t, step.want, next)
		stage = next
	}
	require.True(t, stage.Terminal())
}

func TestTransitionRejectsIllegalJumps(t *testing.T) {
	tests := []struct {
		name  string
		stage model.Stage
		event SessionEvent
	}{
		{"start before checks", model.StageReadyToStart, EventSessionStarted},
		{"checks twice", model.StageStartingExamSession, EventBeginChecks},
		{"checks after failure", model.StageSecurityChecksFailed, EventBeginChecks},
		{"submit before start", model.StageReadyToStart, EventSubmit},
		{"answer-phase event after submit", model.StageExamCompleted, EventSubmit},
		{"token validation mid-exam", model.StageExamInProgress, EventValidateToken},
		{"backward into checks", model.StageExamInProgress, EventBeginChecks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(tt.stage, tt.event)
			require.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestTransitionTerminalStagesAreFinal(t *testing.T) {
	terminals := []model.Stage{
		model.StageExamCompleted,
		model.StageError,
		model.StageSecurityChecksFailed,
	}
	events := []SessionEvent{
		EventValidateToken, EventTokenValid, EventDetailsFetched,
		EventBeginChecks, EventChecksPassed, EventChecksFailed,
		EventSessionStarted, EventSubmit, EventSubmitConfirmed,
		EventSubmitFailed, EventFatalError,
	}
	for _, stage := range terminals {
		for _, event := range events {
			_, err := Transition(stage, event)
			require.ErrorIs(t, err, ErrInvalidTransition, "%s must reject %s", stage, event)
		}
	}
}

func TestTransitionFatalErrorFromAnyLiveStage(t *testing.T) {
	live := []model.Stage{
		model.StageInitializing,
		model.StageValidatingToken,
		model.StageFetchingDetails,
		model.StageReadyToStart,
		model.StagePerformingSecurityChecks,
		model.StageStartingExamSession,
		model.StageExamInProgress,
		model.StageSubmittingExam,
	}
	for _, stage := range live {
		next, err := Transition(stage, EventFatalError)
		require.NoError(t, err)
		require.Equal(t, model.StageError, next)
	}
}

func TestTransitionAlreadySubmittedShortCircuit(t *testing.T) {
	next, err := Transition(model.StageValidatingToken, EventAlreadySubmitted)
	require.NoError(t, err)
	require.Equal(t, model.StageExamCompleted, next)
}

func TestTransitionSubmitRetryLoop(t *testing.T) {
	// A failed submit stays in submittingExam so the retry is legal.
	next, err := Transition(model.StageSubmittingExam, EventSubmitFailed)
	require.NoError(t, err)
	require.Equal(t, model.StageSubmittingExam, next)

	next, err = Transition(next, EventSubmitConfirmed)
	require.NoError(t, err)
	require.Equal(t, model.StageExamCompleted, next)
}

func TestTransitionChecksFailed(t *testing.T) {
	next, err := Transition(model.StagePerformingSecurityChecks, EventChecksFailed)
	require.NoError(t, err)
	require.Equal(t, model.StageSecurityChecksFailed, next)
	require.True(t, next.Terminal())
}
