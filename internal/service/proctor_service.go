package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// WatchdogEvent is one discrete browser event reported by the shell.
type WatchdogEvent struct {
	Kind  string `json:"kind"` // keydown | copy | paste | contextmenu
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// ProctorService creates per-session integrity monitors and queues their
// flags for batch persistence by the flag worker.
type ProctorService struct {
	cfg *config.Config
	rdb *redis.Client
	log zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		cfg: cfg,
		rdb: rdb,
		log: log.With().Str("component", "proctor_service").Logger(),
	}
}

// flagQueuePayload matches what the flag worker consumes.
type flagQueuePayload struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	Type      string `json:"type"`
	Details   string `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewMonitor builds a monitor handle for one running session. The handle
// owns all throttle state; callers must invoke Teardown on every exit path
// before releasing the connection.
func (s *ProctorService) NewMonitor(examID uuid.UUID, studentID int, proctoringEnabled bool) *Monitor {
	return &Monitor{
		svc:               s,
		examID:            examID,
		studentID:         studentID,
		proctoringEnabled: proctoringEnabled,
		cooldown:          s.cfg.FlagCooldown,
		noFaceWindow:      s.cfg.NoFaceWindow,
		yawLimit:          s.cfg.YawLimit,
		now:               time.Now,
		lastEmit:          make(map[model.FlagType]time.Time),
	}
}

// enqueue pushes one flag onto the persistence queue. Best-effort: a Redis
// hiccup loses the flag but never interrupts the exam.
func (s *ProctorService) enqueue(ctx context.Context, examID uuid.UUID, studentID int, t model.FlagType, details string, at time.Time) {
	raw, _ := json.Marshal(flagQueuePayload{
		StudentID: studentID,
		ExamID:    examID.String(),
		Type:      string(t),
		Details:   details,
		Timestamp: at.Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistFlagsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).
			Int("student_id", studentID).
			Str("type", string(t)).
			Msg("Failed to queue flag")
	}
}

// Monitor is the integrity monitor for one session: the face-tracking
// evaluator and the browser watchdog share its throttle state. Not safe for
// concurrent use — each WebSocket read loop owns exactly one.
type Monitor struct {
	svc               *ProctorService
	examID            uuid.UUID
	studentID         int
	proctoringEnabled bool

	cooldown     time.Duration
	noFaceWindow time.Duration
	yawLimit     float64

	now func() time.Time // injectable for tests

	lastEmit    map[model.FlagType]time.Time
	noFaceSince time.Time
	torn        bool
}

// ObserveFrame evaluates one face-detection frame. Returns the flags
// emitted for this frame (after throttling), empty for a clean frame.
func (m *Monitor) ObserveFrame(ctx context.Context, faces int, yaw float64) []model.FlagType {
	if m.torn || !m.proctoringEnabled {
		return nil
	}

	now := m.now()
	var emitted []model.FlagType

	switch {
	case faces == 0:
		if m.noFaceSince.IsZero() {
			m.noFaceSince = now
		}
		// Fire once the absence outlasts the window; while it persists,
		// the cooldown gates every re-fire.
		if now.Sub(m.noFaceSince) >= m.noFaceWindow {
			if m.emit(ctx, model.FlagNoFaceDetected, "", now) {
				emitted = append(emitted, model.FlagNoFaceDetected)
			}
		}
		return emitted

	case faces > 1:
		m.resetNoFace()
		if m.emit(ctx, model.FlagMultipleFacesDetected, "", now) {
			emitted = append(emitted, model.FlagMultipleFacesDetected)
		}
		return emitted

	default:
		m.resetNoFace()
		if yaw > m.yawLimit || yaw < -m.yawLimit {
			if m.emit(ctx, model.FlagUserLookingAway, "", now) {
				emitted = append(emitted, model.FlagUserLookingAway)
			}
		}
		return emitted
	}
}

// ObserveWebcamFailure records a mid-exam webcam acquisition failure.
func (m *Monitor) ObserveWebcamFailure(ctx context.Context, status model.WebcamStatus) (model.FlagType, bool) {
	if m.torn || !m.proctoringEnabled {
		return "", false
	}

	var t model.FlagType
	switch status {
	case model.WebcamStatusPermissionDenied:
		t = model.FlagWebcamPermissionDenied
	case model.WebcamStatusUnavailable:
		t = model.FlagWebcamUnavailable
	default:
		return "", false
	}

	return t, m.emit(ctx, t, "", m.now())
}

// ObserveWatchdog classifies one browser event and records the matching
// flag. The shell has already suppressed the default action; the server
// only keeps the evidence trail.
func (m *Monitor) ObserveWatchdog(ctx context.Context, ev WatchdogEvent) (model.FlagType, bool) {
	if m.torn {
		return "", false
	}

	t, flagged := classifyWatchdog(ev)
	if !flagged {
		return "", false
	}

	details, _ := json.Marshal(ev)
	return t, m.emit(ctx, t, string(details), m.now())
}

// Teardown permanently disables the monitor. All later observations are
// no-ops, so a torn-down session can never emit flags. Idempotent.
func (m *Monitor) Teardown() {
	m.torn = true
}

func (m *Monitor) resetNoFace() {
	m.noFaceSince = time.Time{}
}

// emit applies the per-type cooldown: a repeat of the same type within the
// window is silently dropped. Returns whether the flag was recorded.
func (m *Monitor) emit(ctx context.Context, t model.FlagType, details string, now time.Time) bool {
	if last, ok := m.lastEmit[t]; ok && now.Sub(last) < m.cooldown {
		return false
	}
	m.lastEmit[t] = now
	m.svc.enqueue(ctx, m.examID, m.studentID, t, details, now)
	return true
}

// ────────────────────────────────────────────────────────────────────────────
// Watchdog classification
// ────────────────────────────────────────────────────────────────────────────

// cheatShortcutKeys are flagged when pressed with Ctrl or Cmd.
var cheatShortcutKeys = map[string]bool{
	"c": true, "v": true, "x": true, "a": true,
	"p": true, "s": true, "f": true,
}

// classifyWatchdog maps one browser event to its flag type.
// Permitted keystrokes: letters, arrows, space, enter, backspace/delete,
// tab. Everything else without a modifier is a disallowed key; the
// enumerated shortcut combos and exit keys are shortcut attempts.
func classifyWatchdog(ev WatchdogEvent) (model.FlagType, bool) {
	switch ev.Kind {
	case "copy":
		return model.FlagCopyAttempt, true
	case "paste":
		return model.FlagPasteAttempt, true
	case "contextmenu":
		return model.FlagShortcutAttempt, true
	case "keydown":
		return classifyKey(ev)
	default:
		return "", false
	}
}

func classifyKey(ev WatchdogEvent) (model.FlagType, bool) {
	key := ev.Key
	lower := strings.ToLower(key)

	// Known cheat/exit shortcuts.
	if (ev.Ctrl || ev.Meta) && cheatShortcutKeys[lower] {
		return model.FlagShortcutAttempt, true
	}
	if ev.Alt && (lower == "tab" || lower == "f4") {
		return model.FlagShortcutAttempt, true
	}
	if isFunctionKey(key) {
		return model.FlagShortcutAttempt, true
	}
	if key == "Escape" {
		return model.FlagShortcutAttempt, true
	}

	// Modified combos outside the cheat list pass through (the shell
	// already blocked anything it cares about).
	if ev.Ctrl || ev.Meta || ev.Alt {
		return "", false
	}

	if isPermittedKey(key) {
		return "", false
	}
	return model.FlagDisallowedKey, true
}

func isPermittedKey(key string) bool {
	// Single letters A–Z / a–z.
	if len(key) == 1 {
		c := key[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == ' '
	}
	switch key {
	case "ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight",
		"Enter", "Backspace", "Delete", "Tab", "Space":
		return true
	}
	return false
}

func isFunctionKey(key string) bool {
	if len(key) < 2 || len(key) > 3 || key[0] != 'F' {
		return false
	}
	for _, c := range key[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
