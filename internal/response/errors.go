package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Entry credential ──────────────────────────────────────────────
	ErrTokenRequired         ErrCode = "TOKEN_REQUIRED"
	ErrTokenExpired          ErrCode = "TOKEN_EXPIRED"
	ErrTokenMalformed        ErrCode = "TOKEN_MALFORMED"
	ErrTokenSignatureInvalid ErrCode = "TOKEN_SIGNATURE_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrDataUnavailable      ErrCode = "DATA_UNAVAILABLE"
	ErrInvalidStage         ErrCode = "INVALID_STAGE"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSecurityChecksFailed ErrCode = "SECURITY_CHECKS_FAILED"
	ErrChecksAlreadyRan     ErrCode = "CHECKS_ALREADY_RAN"
	ErrBacktrackingDisabled ErrCode = "BACKTRACKING_DISABLED"
	ErrExamNotInProgress    ErrCode = "EXAM_NOT_IN_PROGRESS"
	ErrExamNotScheduled     ErrCode = "EXAM_NOT_SCHEDULED"

	// ─── Submission ────────────────────────────────────────────────────
	ErrSubmissionFailed ErrCode = "SUBMISSION_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Entry credential ──────────────────────────────────────────────
	case ErrTokenRequired:
		return "An exam entry token is required."
	case ErrTokenExpired:
		return "This exam entry link has expired. Please request a new one."
	case ErrTokenMalformed:
		return "The exam entry token is malformed."
	case ErrTokenSignatureInvalid:
		return "The exam entry token could not be verified."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrDataUnavailable:
		return "The exam or student record could not be found."
	case ErrInvalidStage:
		return "This action is not allowed in the current session stage."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted. Attempts cannot be repeated."
	case ErrSecurityChecksFailed:
		return "A critical security check failed. The exam cannot start."
	case ErrChecksAlreadyRan:
		return "Security checks have already run for this session."
	case ErrBacktrackingDisabled:
		return "Going back to previous questions is disabled for this exam."
	case ErrExamNotInProgress:
		return "The exam is not in progress."
	case ErrExamNotScheduled:
		return "The exam is outside its scheduled window."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrSubmissionFailed:
		return "Your submission could not be saved. Do not close the browser — please retry or contact support."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
