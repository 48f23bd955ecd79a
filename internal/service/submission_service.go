package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ErrSubmitInFlight means another path (manual submit, timer expiry, or the
// deadline reaper) holds the submit lock. The losing caller is a no-op.
var ErrSubmitInFlight = errors.New("submission already in flight")

// questionLister provides the authoritative grading source.
type questionLister interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// submissionStore is the durable attempt contract used by the scorer.
type submissionStore interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error)
	UpsertCompleted(ctx context.Context, sub *model.Submission) error
}

// flagTrail exposes the persisted incident count for diagnostics.
type flagTrail interface {
	CountByAttempt(ctx context.Context, examID uuid.UUID, studentID int) (int64, error)
}

// SubmissionService computes scores from authoritative question data and
// persists the final attempt exactly once. Client-supplied scores are never
// trusted.
type SubmissionService struct {
	cfg         *config.Config
	rdb         *redis.Client
	questions   questionLister
	submissions submissionStore
	flags       flagTrail
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	cfg *config.Config,
	rdb *redis.Client,
	questions questionLister,
	submissions submissionStore,
	flags flagTrail,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		cfg:         cfg,
		rdb:         rdb,
		questions:   questions,
		submissions: submissions,
		flags:       flags,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Score grades an answers snapshot against the question list. A question
// earns its marks only when the chosen option equals the correct one;
// unanswered questions score zero. The percentage is rounded to 2 decimals,
// and an exam with no obtainable marks scores 0.
func Score(questions []model.Question, answers map[string]string) (score, obtained, total float64) {
	for _, q := range questions {
		total += q.Marks
		if chosen, ok := answers[q.ID.String()]; ok && chosen == q.CorrectOptionID {
			obtained += q.Marks
		}
	}
	if total == 0 {
		return 0, obtained, 0
	}
	score = math.Round(obtained/total*100*100) / 100
	return score, obtained, total
}

// Finalize freezes the answers snapshot and persists the Completed attempt.
// A Redis SET NX lock makes manual submit, timer expiry, and the deadline
// reaper mutually exclusive: whichever acquires the lock first wins; the
// others either receive the stored result (if already completed) or
// ErrSubmitInFlight.
func (s *SubmissionService) Finalize(ctx context.Context, examID uuid.UUID, studentID int, answers map[string]string, startedAt time.Time) (*model.SubmitResult, error) {
	lockKey := config.CacheKey.SubmitLockKey(examID.String(), studentID)

	acquired, err := s.rdb.SetNX(ctx, lockKey, time.Now().Unix(), s.cfg.SubmitLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !acquired {
		// The pair may already be finalized — answer idempotently.
		if existing, gerr := s.submissions.GetByExamAndStudent(ctx, examID, studentID); gerr == nil &&
			existing.Status == model.SubmissionStatusCompleted {
			return resultOf(existing), nil
		}
		return nil, ErrSubmitInFlight
	}

	// Holding the lock is not proof the attempt is open: a retry after the
	// lock TTL expired acquires it against an already-completed row whose
	// hot answers are gone. The durable record wins over a re-grade.
	if existing, gerr := s.submissions.GetByExamAndStudent(ctx, examID, studentID); gerr == nil &&
		existing.Status == model.SubmissionStatusCompleted {
		s.rdb.Del(ctx, lockKey)
		return resultOf(existing), nil
	}

	result, err := s.finalizeLocked(ctx, examID, studentID, answers, startedAt)
	if err != nil {
		// Release so the shell's retry path is not dead-locked until TTL.
		s.rdb.Del(ctx, lockKey)
		return nil, err
	}
	return result, nil
}

func (s *SubmissionService) finalizeLocked(ctx context.Context, examID uuid.UUID, studentID int, answers map[string]string, startedAt time.Time) (*model.SubmitResult, error) {
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	score, obtained, total := Score(questions, answers)

	sub := &model.Submission{
		ExamID:             examID,
		StudentID:          studentID,
		Answers:            answers,
		Score:              score,
		MarksObtained:      obtained,
		TotalPossibleMarks: total,
		StartedAt:          startedAt,
	}
	if err := s.submissions.UpsertCompleted(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	// Deadline index entry is spent either way.
	s.rdb.ZRem(ctx, config.CacheKey.SessionDeadlinesKey(),
		config.CacheKey.DeadlineMember(examID.String(), studentID))

	// Elapsed-time + incident diagnostics against the authoritative
	// start-of-attempt marker.
	flagCount, _ := s.flags.CountByAttempt(ctx, examID, studentID)
	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Float64("score", score).
		Float64("marks_obtained", obtained).
		Float64("total_marks", total).
		Dur("elapsed", time.Since(startedAt)).
		Int64("flagged_events", flagCount).
		Msg("Attempt finalized")

	return resultOf(sub), nil
}

func resultOf(sub *model.Submission) *model.SubmitResult {
	return &model.SubmitResult{
		SubmissionID:       sub.ID,
		Score:              sub.Score,
		MarksObtained:      sub.MarksObtained,
		TotalPossibleMarks: sub.TotalPossibleMarks,
	}
}
