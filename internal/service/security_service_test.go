package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

func newSecurityService() *SecurityService {
	return NewSecurityService(&config.Config{
		ShellUASignature: "VigilShell",
		DevtoolsDeltaPx:  160,
	}, zerolog.Nop())
}

func cleanReport() *model.EnvironmentReport {
	return &model.EnvironmentReport{
		UserAgent:     "Mozilla/5.0 VigilShell/1.2.0",
		OuterWidth:    1920,
		OuterHeight:   1080,
		InnerWidth:    1920,
		InnerHeight:   1040,
		WebdriverFlag: false,
		NetworkOnline: true,
		WebcamStatus:  model.WebcamStatusReady,
		ModelLoaded:   true,
	}
}

func proctoredExam() *model.Exam {
	return &model.Exam{WebcamProctoringEnabled: true}
}

func checkByID(t *testing.T, outcome *CheckOutcome, id string) model.SecurityCheck {
	t.Helper()
	for _, c := range outcome.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %s not in outcome", id)
	return model.SecurityCheck{}
}

func TestSecurityRunAllPass(t *testing.T) {
	outcome := newSecurityService().Run(proctoredExam(), cleanReport())

	require.True(t, outcome.Passed)
	require.Empty(t, outcome.FailedCheckID)
	require.Len(t, outcome.Checks, 5)
	for _, c := range outcome.Checks {
		require.Equal(t, model.CheckStatusPassed, c.Status, c.ID)
	}
}

func TestSecurityRunOrderIsStable(t *testing.T) {
	outcome := newSecurityService().Run(proctoredExam(), cleanReport())

	wantOrder := []string{
		model.CheckRuntimeAttestation,
		model.CheckNetwork,
		model.CheckWebcamAndModel,
		model.CheckDevtoolsClosed,
		model.CheckNoAutomation,
	}
	for i, id := range wantOrder {
		require.Equal(t, id, outcome.Checks[i].ID)
	}
}

func TestSecurityRunDevtoolsFailureShortCircuits(t *testing.T) {
	report := cleanReport()
	report.InnerWidth = 1520 // 400px delta: docked devtools

	outcome := newSecurityService().Run(proctoredExam(), report)

	require.False(t, outcome.Passed)
	require.Equal(t, model.CheckDevtoolsClosed, outcome.FailedCheckID)

	require.Equal(t, model.CheckStatusPassed, checkByID(t, outcome, model.CheckRuntimeAttestation).Status)
	require.Equal(t, model.CheckStatusPassed, checkByID(t, outcome, model.CheckNetwork).Status)
	require.Equal(t, model.CheckStatusFailed, checkByID(t, outcome, model.CheckDevtoolsClosed).Status)
	// Checks after the failure never ran.
	require.Equal(t, model.CheckStatusPending, checkByID(t, outcome, model.CheckNoAutomation).Status)
}

func TestSecurityRunFirstCheckFailure(t *testing.T) {
	report := cleanReport()
	report.UserAgent = "Mozilla/5.0 Chrome/120.0"

	outcome := newSecurityService().Run(proctoredExam(), report)

	require.False(t, outcome.Passed)
	require.Equal(t, model.CheckRuntimeAttestation, outcome.FailedCheckID)
	require.Equal(t, model.CheckStatusFailed, outcome.Checks[0].Status)
	for _, c := range outcome.Checks[1:] {
		require.Equal(t, model.CheckStatusPending, c.Status, c.ID)
	}
}

func TestSecurityRunWebcamSkippedWhenProctoringDisabled(t *testing.T) {
	report := cleanReport()
	report.WebcamStatus = model.WebcamStatusUnavailable

	exam := &model.Exam{WebcamProctoringEnabled: false}
	outcome := newSecurityService().Run(exam, report)

	require.True(t, outcome.Passed)
	webcam := checkByID(t, outcome, model.CheckWebcamAndModel)
	require.Equal(t, model.CheckStatusSkipped, webcam.Status)
	require.False(t, webcam.IsCritical)
	require.Empty(t, webcam.Detail)
}

func TestSecurityRunWebcamFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.EnvironmentReport)
	}{
		{"permission denied", func(r *model.EnvironmentReport) {
			r.WebcamStatus = model.WebcamStatusPermissionDenied
		}},
		{"no device", func(r *model.EnvironmentReport) {
			r.WebcamStatus = model.WebcamStatusUnavailable
		}},
		{"model load failure", func(r *model.EnvironmentReport) {
			r.ModelLoaded = false
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleanReport()
			tt.mutate(report)

			outcome := newSecurityService().Run(proctoredExam(), report)
			require.False(t, outcome.Passed)
			require.Equal(t, model.CheckWebcamAndModel, outcome.FailedCheckID)
			require.NotEmpty(t, checkByID(t, outcome, model.CheckWebcamAndModel).Detail)
		})
	}
}

func TestSecurityRunAutomationDetected(t *testing.T) {
	report := cleanReport()
	report.WebdriverFlag = true

	outcome := newSecurityService().Run(proctoredExam(), report)

	require.False(t, outcome.Passed)
	require.Equal(t, model.CheckNoAutomation, outcome.FailedCheckID)
}

func TestSecurityRunOffline(t *testing.T) {
	report := cleanReport()
	report.NetworkOnline = false

	outcome := newSecurityService().Run(proctoredExam(), report)

	require.False(t, outcome.Passed)
	require.Equal(t, model.CheckNetwork, outcome.FailedCheckID)
}
