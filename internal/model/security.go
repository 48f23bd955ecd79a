package model

// CheckStatus enumerates the lifecycle of a single security check.
type CheckStatus string

const (
	CheckStatusPending  CheckStatus = "pending"
	CheckStatusChecking CheckStatus = "checking"
	CheckStatusPassed   CheckStatus = "passed"
	CheckStatusFailed   CheckStatus = "failed"
	CheckStatusSkipped  CheckStatus = "skipped"
)

// Well-known check ids. Order of execution is fixed by the engine.
const (
	CheckRuntimeAttestation = "runtime-attestation"
	CheckNetwork            = "network-connectivity"
	CheckWebcamAndModel     = "webcam-and-model-load"
	CheckDevtoolsClosed     = "devtools-closed"
	CheckNoAutomation       = "no-automation-driver"
)

// SecurityCheck is one entry in the ordered check battery.
type SecurityCheck struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	IsCritical bool        `json:"is_critical"`
	Status     CheckStatus `json:"status"`
	Detail     string      `json:"detail,omitempty"`
}

// WebcamStatus is the shell's report of webcam + detection-model acquisition.
type WebcamStatus string

const (
	WebcamStatusReady            WebcamStatus = "ready"
	WebcamStatusUnavailable      WebcamStatus = "unavailable"
	WebcamStatusPermissionDenied WebcamStatus = "permission_denied"
)

// EnvironmentReport is the snapshot the locked-down shell submits for the
// security-check battery. The server never trusts it for scoring — only for
// gating exam start.
type EnvironmentReport struct {
	UserAgent     string       `json:"user_agent" binding:"required"`
	OuterWidth    int          `json:"outer_width" binding:"required,min=1"`
	OuterHeight   int          `json:"outer_height" binding:"required,min=1"`
	InnerWidth    int          `json:"inner_width" binding:"required,min=1"`
	InnerHeight   int          `json:"inner_height" binding:"required,min=1"`
	WebdriverFlag bool         `json:"webdriver_flag"`
	NetworkOnline bool         `json:"network_online"`
	WebcamStatus  WebcamStatus `json:"webcam_status" binding:"omitempty,oneof=ready unavailable permission_denied"`
	ModelLoaded   bool         `json:"model_loaded"`
}
