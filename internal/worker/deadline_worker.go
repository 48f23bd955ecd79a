package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

const reapInterval = 5 * time.Second

// DeadlineWorker auto-submits sessions whose countdown expired without a
// live connection to do it. Every running session registers its deadline in
// a sorted set at start; the stream handler normally submits first and
// removes the entry, so the reaper only catches sessions whose shell died.
type DeadlineWorker struct {
	sessionService *service.SessionService
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(sessionService *service.SessionService, rdb *redis.Client, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		sessionService: sessionService,
		rdb:            rdb,
		log:            log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the reap loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Msg("DeadlineWorker started")

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeadlineWorker stopped")
			return
		case <-ticker.C:
			w.reap(ctx)
		}
	}
}

func (w *DeadlineWorker) reap(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	members, err := w.rdb.ZRangeByScore(ctx, config.CacheKey.SessionDeadlinesKey(), &redis.ZRangeBy{
		Min: "0",
		Max: now,
	}).Result()
	if err != nil {
		w.log.Error().Err(err).Msg("Deadline scan failed")
		return
	}

	for _, member := range members {
		examID, studentID, ok := parseDeadlineMember(member)
		if !ok {
			w.log.Error().Str("member", member).Msg("Dropping malformed deadline entry")
			w.rdb.ZRem(ctx, config.CacheKey.SessionDeadlinesKey(), member)
			continue
		}

		result, err := w.sessionService.Submit(ctx, examID, studentID)
		if err != nil {
			if errors.Is(err, service.ErrSubmitInFlight) {
				// A live connection is finishing this one.
				continue
			}
			if errors.Is(err, service.ErrNotInProgress) {
				// Session left examInProgress through another path; the
				// deadline entry is stale.
				w.rdb.ZRem(ctx, config.CacheKey.SessionDeadlinesKey(), member)
				continue
			}
			w.log.Error().Err(err).
				Str("exam_id", examID.String()).
				Int("student_id", studentID).
				Msg("Reaper submit failed, will retry")
			continue
		}

		w.log.Info().
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Float64("score", result.Score).
			Msg("Expired session auto-submitted")
	}
}

// parseDeadlineMember decodes "examID:studentID".
func parseDeadlineMember(member string) (uuid.UUID, int, bool) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return uuid.Nil, 0, false
	}
	examID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, 0, false
	}
	studentID, err := strconv.Atoi(parts[1])
	if err != nil {
		return uuid.Nil, 0, false
	}
	return examID, studentID, true
}
