package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
	ws "github.com/vigilcbt/vigil-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the live session stream: in-exam actions, integrity
// observations, and the per-second countdown push.
type WSHandler struct {
	cfg            *config.Config
	sessionService *service.SessionService
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(cfg *config.Config, sessionService *service.SessionService, proctorService *service.ProctorService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		sessionService: sessionService,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/:exam_id/stream
// Upgrades to WebSocket for in-exam actions, face-tracking and watchdog
// reports, and the authoritative countdown.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetEntryClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	studentID := claims.StudentID

	if stage := h.sessionService.Stage(c.Request.Context(), examID, studentID); stage != model.StageExamInProgress {
		conn.WriteError(string(response.ErrExamNotInProgress), "no running session for this exam")
		return
	}

	proctoring := true
	if payload, perr := h.sessionService.ExamPayload(c.Request.Context(), examID); perr == nil {
		proctoring = payload.WebcamProctoringEnabled
	}
	monitor := h.proctorService.NewMonitor(examID, studentID, proctoring)
	defer monitor.Teardown()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Session stream connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// finished flips once, whether the student submits or the countdown
	// expires. Both paths converge on the same idempotent finalize.
	var finished atomic.Bool

	go h.pushCountdown(ctx, conn, wsLog, examID, studentID, &finished)

	for {
		rawMsg, err := conn.NextMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(rawMsg, &envelope); err != nil {
			conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, examID, studentID, rawMsg)
		case ws.ActionNavigate:
			h.handleNavigate(ctx, conn, examID, studentID, rawMsg)
		case ws.ActionMarkReview:
			h.handleMarkReview(ctx, conn, examID, studentID, rawMsg)
		case ws.ActionFrame:
			h.handleFrame(ctx, monitor, rawMsg)
		case ws.ActionWatchdog:
			h.handleWatchdog(ctx, monitor, rawMsg)
		case ws.ActionWebcamError:
			if h.handleWebcamError(ctx, conn, wsLog, monitor, examID, studentID, rawMsg) {
				return
			}
		case ws.ActionSubmit:
			h.finishSession(ctx, conn, wsLog, examID, studentID, &finished, false)
			return
		case ws.ActionPing:
			conn.Write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(envelope.Action))
		}
	}
}

// pushCountdown sends time_left every second and auto-submits when the
// countdown hits zero with the connection still open.
func (h *WSHandler) pushCountdown(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, examID uuid.UUID, studentID int, finished *atomic.Bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if finished.Load() {
			return
		}

		left, err := h.sessionService.TimeLeft(ctx, examID, studentID)
		if err != nil {
			wsLog.Warn().Err(err).Msg("Countdown read failed")
			continue
		}
		if err := conn.Write(ws.TimeLeftResponse{Event: ws.EventTimeLeft, TimeLeftSeconds: left}); err != nil {
			return
		}
		if left <= 0 {
			h.finishSession(ctx, conn, wsLog, examID, studentID, finished, true)
			return
		}
	}
}

// finishSession submits the attempt exactly once per connection and pushes
// the graded result followed by a quit order.
func (h *WSHandler) finishSession(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, examID uuid.UUID, studentID int, finished *atomic.Bool, auto bool) {
	if !finished.CompareAndSwap(false, true) {
		return
	}

	result, err := h.sessionService.Submit(ctx, examID, studentID)
	if err != nil {
		wsLog.Error().Err(err).Bool("auto", auto).Msg("Stream submit failed")
		conn.WriteError(string(response.ErrSubmissionFailed), "submission failed")
		finished.Store(false)
		return
	}

	reason := "exam_submitted"
	if auto {
		reason = "time_expired"
		wsLog.Info().Float64("score", result.Score).Msg("Countdown expired, attempt auto-submitted")
	}

	conn.Write(ws.GradedResponse{
		Event:              ws.EventGraded,
		Score:              result.Score,
		MarksObtained:      result.MarksObtained,
		TotalPossibleMarks: result.TotalPossibleMarks,
		AutoSubmitted:      auto,
	})
	conn.Write(ws.QuitResponse{
		Event:       ws.EventQuit,
		Reason:      reason,
		QuitAfterMS: h.cfg.ShellQuitDelay.Milliseconds(),
	})
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, examID uuid.UUID, studentID int, rawMsg []byte) {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil || msg.QuestionID == "" || msg.OptionID == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "question_id and option_id are required")
		return
	}
	// Well-formed UUID only, to keep Redis keys clean.
	if _, err := uuid.Parse(msg.QuestionID); err != nil {
		conn.WriteError(string(response.ErrInvalidPayload), "invalid question_id format")
		return
	}

	if err := h.sessionService.SaveAnswer(ctx, examID, studentID, msg.QuestionID, msg.OptionID); err != nil {
		h.writeActionError(conn, err)
		return
	}
	conn.Write(ws.SavedResponse{Event: ws.EventSaved, Action: ws.ActionAnswer})
}

func (h *WSHandler) handleNavigate(ctx context.Context, conn *ws.Conn, examID uuid.UUID, studentID int, rawMsg []byte) {
	var msg ws.NavigateRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		conn.WriteError(string(response.ErrInvalidPayload), "malformed navigate message")
		return
	}
	if err := h.sessionService.Navigate(ctx, examID, studentID, msg.ToIndex); err != nil {
		h.writeActionError(conn, err)
		return
	}
	conn.Write(ws.SavedResponse{Event: ws.EventSaved, Action: ws.ActionNavigate})
}

func (h *WSHandler) handleMarkReview(ctx context.Context, conn *ws.Conn, examID uuid.UUID, studentID int, rawMsg []byte) {
	var msg ws.MarkReviewRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil || msg.QuestionID == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "question_id is required")
		return
	}
	if err := h.sessionService.MarkReview(ctx, examID, studentID, msg.QuestionID, msg.Marked); err != nil {
		h.writeActionError(conn, err)
		return
	}
	conn.Write(ws.SavedResponse{Event: ws.EventSaved, Action: ws.ActionMarkReview})
}

func (h *WSHandler) handleFrame(ctx context.Context, monitor *service.Monitor, rawMsg []byte) {
	var msg ws.FrameRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return
	}
	monitor.ObserveFrame(ctx, msg.Faces, msg.Yaw)
}

func (h *WSHandler) handleWatchdog(ctx context.Context, monitor *service.Monitor, rawMsg []byte) {
	var msg ws.WatchdogRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return
	}
	monitor.ObserveWatchdog(ctx, service.WatchdogEvent{
		Kind:  msg.Kind,
		Key:   msg.Key,
		Ctrl:  msg.Ctrl,
		Alt:   msg.Alt,
		Meta:  msg.Meta,
		Shift: msg.Shift,
	})
}

// handleWebcamError records a mid-exam webcam failure. On a proctored exam
// the failure is unrecoverable: the session moves to the error stage and the
// shell receives the quit order. Returns true when the stream should close.
func (h *WSHandler) handleWebcamError(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, monitor *service.Monitor, examID uuid.UUID, studentID int, rawMsg []byte) bool {
	var msg ws.WebcamErrorRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return false
	}
	status := model.WebcamStatusUnavailable
	if msg.Reason == string(model.WebcamStatusPermissionDenied) {
		status = model.WebcamStatusPermissionDenied
	}

	flag, recorded := monitor.ObserveWebcamFailure(ctx, status)
	if !recorded {
		return false
	}
	if err := h.sessionService.Fail(ctx, examID, studentID, string(flag)); err != nil {
		wsLog.Error().Err(err).Msg("Error-stage transition rejected")
		return false
	}
	conn.Write(ws.QuitResponse{
		Event:       ws.EventQuit,
		Reason:      string(flag),
		QuitAfterMS: h.cfg.ShellQuitDelay.Milliseconds(),
	})
	return true
}

// writeActionError maps session errors to stream error frames.
func (h *WSHandler) writeActionError(conn *ws.Conn, err error) {
	code, msg := actionErrCode(err)
	conn.WriteError(string(code), msg)
}

func actionErrCode(err error) (response.ErrCode, string) {
	switch {
	case errors.Is(err, service.ErrTimeExpired):
		return response.ErrExamNotInProgress, "exam time has expired"
	case errors.Is(err, service.ErrNotInProgress):
		return response.ErrExamNotInProgress, "session is not in progress"
	case errors.Is(err, service.ErrAlreadySubmitted):
		return response.ErrAlreadySubmitted, "attempt already submitted"
	case errors.Is(err, service.ErrBacktrackingDisabled):
		return response.ErrBacktrackingDisabled, "backtracking is disabled for this exam"
	case errors.Is(err, service.ErrIndexOutOfRange):
		return response.ErrValidation, "question index out of range"
	default:
		return response.ErrInternal, "operation failed"
	}
}
