package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standardized API response envelope.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
//
// ShellQuitAfterMS, when set, instructs the locked-down browser shell to
// terminate itself after the given delay. It accompanies fatal session
// errors only.
type ErrorBody struct {
	Code             ErrCode           `json:"code"`
	Message          string            `json:"message"`
	Fields           map[string]string `json:"fields,omitempty"`
	ShellQuitAfterMS int64             `json:"shell_quit_after_ms,omitempty"`
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// FailFatal sends a terminal error response carrying the shell-quit handoff.
// Used for errors that end the session: the shell shows the message, waits
// quitAfter, then exits.
func FailFatal(c *gin.Context, statusCode int, code ErrCode, quitAfter time.Duration) {
	c.JSON(statusCode, Response{
		Data: nil,
		Error: &ErrorBody{
			Code:             code,
			Message:          GetMessage(code),
			ShellQuitAfterMS: quitAfter.Milliseconds(),
		},
		Metadata: buildMetadata(c),
	})
}

// FailFatalWithData sends a terminal error alongside a data payload, for
// failures the shell must render in detail before quitting (e.g. which
// security check failed).
func FailFatalWithData(c *gin.Context, statusCode int, code ErrCode, quitAfter time.Duration, data interface{}) {
	c.JSON(statusCode, Response{
		Data: data,
		Error: &ErrorBody{
			Code:             code,
			Message:          GetMessage(code),
			ShellQuitAfterMS: quitAfter.Milliseconds(),
		},
		Metadata: buildMetadata(c),
	})
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: buildMetadata(c),
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Data:     nil,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func buildMetadata(c *gin.Context) Metadata {
	reqID, _ := c.Get(ContextKeyRequestID)
	id, ok := reqID.(string)
	if !ok || id == "" {
		id = uuid.New().String() // Fallback if middleware not applied
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
