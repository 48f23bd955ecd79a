package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
	"github.com/vigilcbt/vigil-backend/internal/validator"
)

// SessionHandler exposes the session lifecycle over HTTP: launch, security
// checks, start, reload-safe state, and submit.
type SessionHandler struct {
	cfg            *config.Config
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(cfg *config.Config, sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		cfg:            cfg,
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// Launch godoc
// GET /api/v1/session/launch?token=...
// Validates the entry credential and returns the session bundle.
func (h *SessionHandler) Launch(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	bundle, err := h.sessionService.Launch(c.Request.Context(), tokenStr)
	if err != nil {
		h.failLaunch(c, err)
		return
	}
	response.Success(c, http.StatusOK, bundle)
}

// failLaunch maps launch errors. Credential failures are fatal for the
// shell: the response carries the quit order.
func (h *SessionHandler) failLaunch(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		response.FailFatal(c, http.StatusUnauthorized, response.ErrTokenExpired, h.cfg.ShellQuitDelay)
	case errors.Is(err, service.ErrTokenSignatureInvalid):
		response.FailFatal(c, http.StatusUnauthorized, response.ErrTokenSignatureInvalid, h.cfg.ShellQuitDelay)
	case errors.Is(err, service.ErrTokenMalformed):
		response.FailFatal(c, http.StatusUnauthorized, response.ErrTokenMalformed, h.cfg.ShellQuitDelay)
	case errors.Is(err, service.ErrOutsideSchedule):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotScheduled)
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrDataUnavailable)
	default:
		h.log.Error().Err(err).Msg("Launch failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// RunSecurityChecks godoc
// POST /api/v1/session/exams/:exam_id/security-checks
// Runs the pre-exam check battery against the shell's environment report.
// A failed critical check is fatal and carries the quit order.
func (h *SessionHandler) RunSecurityChecks(c *gin.Context) {
	examID, studentID, ok := h.identity(c)
	if !ok {
		return
	}

	var report model.EnvironmentReport
	if fields := validator.Bind(c, &report); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.sessionService.RunSecurityChecks(c.Request.Context(), examID, studentID, &report)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			response.Fail(c, http.StatusConflict, response.ErrChecksAlreadyRan)
			return
		}
		h.log.Error().Err(err).Msg("Security checks failed to run")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if !outcome.Passed {
		response.FailFatalWithData(c, http.StatusForbidden, response.ErrSecurityChecksFailed, h.cfg.ShellQuitDelay, outcome)
		return
	}
	response.Success(c, http.StatusOK, outcome)
}

// Start godoc
// POST /api/v1/session/exams/:exam_id/start
// Opens the attempt and starts the authoritative countdown.
func (h *SessionHandler) Start(c *gin.Context) {
	examID, studentID, ok := h.identity(c)
	if !ok {
		return
	}

	state, err := h.sessionService.Start(c.Request.Context(), examID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTransition):
			response.Fail(c, http.StatusConflict, response.ErrInvalidStage)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		default:
			h.log.Error().Err(err).Msg("Session start failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, state)
}

// State godoc
// GET /api/v1/session/exams/:exam_id/state
// Returns the reload-safe session view.
func (h *SessionHandler) State(c *gin.Context) {
	examID, studentID, ok := h.identity(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), examID, studentID)
	if err != nil {
		h.log.Error().Err(err).Msg("State read failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Submit godoc
// POST /api/v1/session/exams/:exam_id/submit
// Finalizes and grades the attempt. Safe to retry.
func (h *SessionHandler) Submit(c *gin.Context) {
	examID, studentID, ok := h.identity(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), examID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmitInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSubmissionFailed)
		case errors.Is(err, service.ErrNotInProgress):
			response.Fail(c, http.StatusConflict, response.ErrExamNotInProgress)
		default:
			h.log.Error().Err(err).Msg("Submit failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrSubmissionFailed)
		}
		return
	}
	response.Success(c, http.StatusOK, result)
}

// identity resolves the exam ID and student from the route and credential.
func (h *SessionHandler) identity(c *gin.Context) (uuid.UUID, int, bool) {
	claims := middleware.GetEntryClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, 0, false
	}
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, 0, false
	}
	return examID, claims.StudentID, true
}
