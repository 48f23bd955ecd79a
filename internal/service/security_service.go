package service

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// CheckOutcome is the engine's verdict over one full battery run.
type CheckOutcome struct {
	Checks        []model.SecurityCheck `json:"checks"`
	Passed        bool                  `json:"passed"`
	FailedCheckID string                `json:"failed_check_id,omitempty"`
}

// SecurityService runs the ordered battery of environment checks against the
// shell's reported snapshot. Execution is strictly sequential so that check
// order is deterministic and a critical failure short-circuits the rest.
type SecurityService struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewSecurityService creates a new SecurityService.
func NewSecurityService(cfg *config.Config, log zerolog.Logger) *SecurityService {
	return &SecurityService{
		cfg: cfg,
		log: log.With().Str("component", "security_service").Logger(),
	}
}

// checkFn evaluates one check. Returning an error marks the check failed
// with the error text as detail.
type checkFn func(report *model.EnvironmentReport) error

type checkSpec struct {
	id       string
	label    string
	critical bool
	run      checkFn
}

// battery returns the ordered check list for one exam. The webcam check is
// critical only when the exam has webcam proctoring enabled; otherwise it is
// skipped without executing.
func (s *SecurityService) battery(exam *model.Exam) []checkSpec {
	return []checkSpec{
		{
			id:       model.CheckRuntimeAttestation,
			label:    "Locked-down browser verification",
			critical: true,
			run:      s.checkRuntimeAttestation,
		},
		{
			id:       model.CheckNetwork,
			label:    "Network connectivity",
			critical: true,
			run:      s.checkNetwork,
		},
		{
			id:       model.CheckWebcamAndModel,
			label:    "Webcam and face-detection model",
			critical: exam.WebcamProctoringEnabled,
			run:      s.checkWebcamAndModel,
		},
		{
			id:       model.CheckDevtoolsClosed,
			label:    "Developer tools closed",
			critical: true,
			run:      s.checkDevtoolsClosed,
		},
		{
			id:       model.CheckNoAutomation,
			label:    "No automation driver",
			critical: true,
			run:      s.checkNoAutomation,
		},
	}
}

// Run executes the battery sequentially. Each check transitions
// pending → checking → passed|failed|skipped. The engine halts at the first
// critical failure; skipped and non-critical failures are tolerated.
func (s *SecurityService) Run(exam *model.Exam, report *model.EnvironmentReport) *CheckOutcome {
	specs := s.battery(exam)

	outcome := &CheckOutcome{
		Checks: make([]model.SecurityCheck, 0, len(specs)),
		Passed: true,
	}

	halted := false
	for _, spec := range specs {
		check := model.SecurityCheck{
			ID:         spec.id,
			Label:      spec.label,
			IsCritical: spec.critical,
			Status:     model.CheckStatusPending,
		}

		if halted {
			// Short-circuited by an earlier critical failure.
			outcome.Checks = append(outcome.Checks, check)
			continue
		}

		// Webcam proctoring disabled: mark skipped without executing.
		if spec.id == model.CheckWebcamAndModel && !exam.WebcamProctoringEnabled {
			check.Status = model.CheckStatusSkipped
			outcome.Checks = append(outcome.Checks, check)
			continue
		}

		check.Status = model.CheckStatusChecking
		if err := spec.run(report); err != nil {
			check.Status = model.CheckStatusFailed
			check.Detail = err.Error()

			s.log.Warn().
				Str("check_id", spec.id).
				Bool("critical", spec.critical).
				Str("detail", check.Detail).
				Msg("Security check failed")

			if spec.critical {
				outcome.Passed = false
				outcome.FailedCheckID = spec.id
				halted = true
			}
		} else {
			check.Status = model.CheckStatusPassed
		}

		outcome.Checks = append(outcome.Checks, check)
	}

	return outcome
}

func (s *SecurityService) checkRuntimeAttestation(report *model.EnvironmentReport) error {
	if !strings.Contains(report.UserAgent, s.cfg.ShellUASignature) {
		return fmt.Errorf("runtime is not the required exam shell")
	}
	return nil
}

func (s *SecurityService) checkNetwork(report *model.EnvironmentReport) error {
	if !report.NetworkOnline {
		return fmt.Errorf("shell reports no network connectivity")
	}
	return nil
}

func (s *SecurityService) checkWebcamAndModel(report *model.EnvironmentReport) error {
	switch report.WebcamStatus {
	case model.WebcamStatusPermissionDenied:
		return fmt.Errorf("webcam permission denied")
	case model.WebcamStatusUnavailable:
		return fmt.Errorf("no webcam device available")
	case model.WebcamStatusReady:
		if !report.ModelLoaded {
			return fmt.Errorf("face-detection model failed to load")
		}
		return nil
	default:
		return fmt.Errorf("webcam status not reported")
	}
}

// checkDevtoolsClosed compares outer vs inner window dimensions. A docked
// devtools panel inflates the delta well past normal chrome.
func (s *SecurityService) checkDevtoolsClosed(report *model.EnvironmentReport) error {
	widthDelta := report.OuterWidth - report.InnerWidth
	heightDelta := report.OuterHeight - report.InnerHeight
	if widthDelta > s.cfg.DevtoolsDeltaPx || heightDelta > s.cfg.DevtoolsDeltaPx {
		return fmt.Errorf("window dimension delta suggests open developer tools (%dx%d)", widthDelta, heightDelta)
	}
	return nil
}

func (s *SecurityService) checkNoAutomation(report *model.EnvironmentReport) error {
	if report.WebdriverFlag {
		return fmt.Errorf("automation driver detected")
	}
	return nil
}
