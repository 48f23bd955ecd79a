package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// FlagWorker drains the flagged-event queue into PostgreSQL. Flags arrive in
// bursts (a watchdog storm, a face lost mid-exam), so they are buffered and
// bulk-inserted with a row-by-row fallback and Redis requeue on failure.
type FlagWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewFlagWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FlagWorker {
	return &FlagWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "flag_worker").Logger(),
	}
}

type flagPayload struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	Type      string `json:"type"`
	Details   string `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (w *FlagWorker) Start(ctx context.Context) {
	w.log.Info().Msg("FlagWorker started")

	buffer := make([]*flagPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for 1 second and returns
		// immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistFlagsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Timeout (queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload flagPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *FlagWorker) flushSafe(ctx context.Context, batch []*flagPayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *FlagWorker) bulkInsert(ctx context.Context, batch []*flagPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		examID, err := uuid.Parse(p.ExamID)
		if err != nil {
			// Trigger fallback, which handles the bad UUID individually.
			return err
		}
		rows = append(rows, []interface{}{
			examID, p.StudentID, p.Type, detailsOrNull(p.Details), time.Unix(p.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"flagged_events"},
		[]string{"exam_id", "student_id", "event_type", "details", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *FlagWorker) fallbackInsert(ctx context.Context, batch []*flagPayload) {
	requeueList := make([]*flagPayload, 0)

	for _, p := range batch {
		examID, err := uuid.Parse(p.ExamID)
		if err != nil {
			w.log.Error().Str("exam_id", p.ExamID).Msg("Dropping flag with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO flagged_events (exam_id, student_id, event_type, details, recorded_at)
             VALUES ($1, $2, $3, $4::jsonb, $5)`,
			examID, p.StudentID, p.Type, detailsOrNull(p.Details), time.Unix(p.Timestamp, 0),
		)
		if err != nil {
			w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	// DB was down: push the failures back to Redis.
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *FlagWorker) requeue(ctx context.Context, items []*flagPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistFlagsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *FlagWorker) shutdown(buffer []*flagPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

// detailsOrNull maps an empty details string to SQL NULL so the jsonb column
// stays clean.
func detailsOrNull(details string) interface{} {
	if details == "" {
		return nil
	}
	return details
}
