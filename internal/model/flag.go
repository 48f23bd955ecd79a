package model

// FlagType identifies a category of suspicious or disallowed activity.
// The values are part of the wire format shared with the exam shell.
type FlagType string

const (
	// Face-tracking loop.
	FlagNoFaceDetected         FlagType = "NO_FACE_DETECTED"
	FlagMultipleFacesDetected  FlagType = "MULTIPLE_FACES_DETECTED"
	FlagUserLookingAway        FlagType = "USER_LOOKING_AWAY"
	FlagWebcamUnavailable      FlagType = "WEBCAM_UNAVAILABLE"
	FlagWebcamPermissionDenied FlagType = "WEBCAM_PERMISSION_DENIED"

	// Browser watchdog.
	FlagShortcutAttempt FlagType = "shortcut_attempt"
	FlagCopyAttempt     FlagType = "copy_attempt"
	FlagPasteAttempt    FlagType = "paste_attempt"
	FlagDisallowedKey   FlagType = "disallowed_key_pressed"
)
