package websocket

// ─── Actions (Shell → Server) ───────────────────────────────────────

type Action string

const (
	ActionAnswer      Action = "answer"
	ActionNavigate    Action = "navigate"
	ActionMarkReview  Action = "mark_review"
	ActionFrame       Action = "frame"
	ActionWatchdog    Action = "watchdog"
	ActionWebcamError Action = "webcam_error"
	ActionSubmit      Action = "submit"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects an option for a question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
}

// NavigateRequest moves the current question index.
type NavigateRequest struct {
	Action  Action `json:"action"`
	ToIndex int    `json:"to_index"`
}

// MarkReviewRequest toggles a question's review mark.
type MarkReviewRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Marked     bool   `json:"marked"`
}

// FrameRequest carries one face-tracking observation. The shell runs the
// detector locally and reports only the face count and head yaw, never
// video.
type FrameRequest struct {
	Action Action  `json:"action"`
	Faces  int     `json:"faces"`
	Yaw    float64 `json:"yaw"`
}

// WatchdogRequest reports a browser input event caught by the shell.
type WatchdogRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"` // keydown | copy | paste | contextmenu
	Key    string `json:"key,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Alt    bool   `json:"alt,omitempty"`
	Meta   bool   `json:"meta,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
}

// WebcamErrorRequest reports a webcam fault during a proctored session.
type WebcamErrorRequest struct {
	Action Action `json:"action"`
	Reason string `json:"reason"` // unavailable | permission_denied
}

// SubmitRequest finishes and grades the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Shell) ────────────────────────────────────────

type Event string

const (
	EventTimeLeft Event = "time_left"
	EventSaved    Event = "saved"
	EventGraded   Event = "graded"
	EventError    Event = "error"
	EventQuit     Event = "quit"
	EventPong     Event = "pong"
)

// TimeLeftResponse is pushed every second while the exam runs.
type TimeLeftResponse struct {
	Event           Event `json:"event"`
	TimeLeftSeconds int   `json:"time_left_seconds"`
}

// SavedResponse acknowledges an answer, navigation, or review action.
type SavedResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

// GradedResponse carries the final score after a submit.
type GradedResponse struct {
	Event              Event   `json:"event"`
	Score              float64 `json:"score"`
	MarksObtained      float64 `json:"marks_obtained"`
	TotalPossibleMarks float64 `json:"total_possible_marks"`
	AutoSubmitted      bool    `json:"auto_submitted"`
}

// ErrorResponse reports a rejected action or a fatal session fault. When
// QuitAfterMS is non-zero the shell must close itself after that delay.
type ErrorResponse struct {
	Event       Event  `json:"event"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error"`
	QuitAfterMS int64  `json:"quit_after_ms,omitempty"`
}

// QuitResponse orders the shell to close after the given delay.
type QuitResponse struct {
	Event       Event  `json:"event"`
	Reason      string `json:"reason"`
	QuitAfterMS int64  `json:"quit_after_ms"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
