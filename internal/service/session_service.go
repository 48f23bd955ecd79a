package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

var (
	// ErrAlreadySubmitted is returned when an operation requires a live
	// attempt but the student's submission is already COMPLETED.
	ErrAlreadySubmitted = errors.New("attempt already submitted")

	// ErrOutsideSchedule is returned when launch happens before the exam's
	// scheduled start or after its scheduled end.
	ErrOutsideSchedule = errors.New("exam is not open at this time")

	// ErrNotInProgress is returned when an in-exam operation arrives while
	// the session is not in the examInProgress stage.
	ErrNotInProgress = errors.New("session is not in progress")

	// ErrTimeExpired is returned when an answer arrives after the countdown
	// reached zero.
	ErrTimeExpired = errors.New("exam time has expired")

	// ErrBacktrackingDisabled is returned for a backward navigation request
	// on an exam that forbids revisiting questions.
	ErrBacktrackingDisabled = errors.New("backtracking is disabled for this exam")

	// ErrIndexOutOfRange is returned for a navigation target beyond the
	// question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
)

// answerQueuePayload is the wire format pushed to the answer persistence
// queue. The autosave worker decodes the same shape.
type answerQueuePayload struct {
	StudentID  int    `json:"student_id"`
	ExamID     string `json:"exam_id"`
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
	Timestamp  int64  `json:"timestamp"`
}

// SessionService owns the proctored session lifecycle. Every stage change
// goes through the transition table, so illegal jumps (starting twice,
// re-running security checks, answering after submit) are rejected before
// any side effect runs. Redis holds the hot session state; PostgreSQL holds
// the durable attempt record.
type SessionService struct {
	cfg            *config.Config
	rdb            *redis.Client
	tokenService   *TokenService
	examService    *ExamService
	securitySvc    *SecurityService
	submissionSvc  *SubmissionService
	studentRepo    *repository.StudentRepository
	submissionRepo *repository.SubmissionRepository
	log            zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	rdb *redis.Client,
	tokenService *TokenService,
	examService *ExamService,
	securitySvc *SecurityService,
	submissionSvc *SubmissionService,
	studentRepo *repository.StudentRepository,
	submissionRepo *repository.SubmissionRepository,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		cfg:            cfg,
		rdb:            rdb,
		tokenService:   tokenService,
		examService:    examService,
		securitySvc:    securitySvc,
		submissionSvc:  submissionSvc,
		studentRepo:    studentRepo,
		submissionRepo: submissionRepo,
		log:            log.With().Str("component", "session_service").Logger(),
	}
}

// opCtx bounds a store round-trip so a stalled backend surfaces as an error
// instead of a hang the shell cannot distinguish from success.
func (s *SessionService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.NetworkTimeout)
}

// Launch validates an entry credential and resolves the session bundle. A
// relaunch while the exam is running preserves the persisted stage so the
// shell can resume through State; a completed attempt short-circuits to
// examCompleted without exposing exam content.
func (s *SessionService) Launch(ctx context.Context, tokenStr string) (*model.LaunchBundle, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stage := model.StageInitializing
	stage, _ = Transition(stage, EventValidateToken)

	verdict, err := s.tokenService.Validate(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	student, err := s.studentRepo.GetByID(ctx, verdict.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	if verdict.IsAlreadySubmitted {
		stage, _ = Transition(stage, EventAlreadySubmitted)
		s.setStage(ctx, verdict.ExamID, verdict.StudentID, stage)
		return &model.LaunchBundle{
			Student:            student,
			Stage:              stage,
			IsAlreadySubmitted: true,
		}, nil
	}
	stage, _ = Transition(stage, EventTokenValid)

	exam, err := s.examService.GetDefinition(ctx, verdict.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if err := scheduleWindow(exam, time.Now()); err != nil {
		return nil, err
	}

	payload, err := s.examService.GetPayload(ctx, verdict.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}
	stage, _ = Transition(stage, EventDetailsFetched)

	// A relaunch mid-exam (shell restart, page reload) must not rewind a
	// running session. Anything earlier, including a failed prior run, gets
	// a fresh readyToStart.
	persisted := s.getStage(ctx, verdict.ExamID, verdict.StudentID)
	switch persisted {
	case model.StageStartingExamSession, model.StageExamInProgress, model.StageSubmittingExam:
		stage = persisted
	default:
		s.setStage(ctx, verdict.ExamID, verdict.StudentID, stage)
	}

	return &model.LaunchBundle{
		Student: student,
		Exam:    payload,
		Stage:   stage,
	}, nil
}

// scheduleWindow rejects launches outside the exam's scheduled window.
func scheduleWindow(exam *model.Exam, now time.Time) error {
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return ErrOutsideSchedule
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return ErrOutsideSchedule
	}
	return nil
}

// RunSecurityChecks executes the check battery exactly once per session. The
// transition table enforces the once: a second call finds the session past
// readyToStart and gets ErrInvalidTransition.
func (s *SessionService) RunSecurityChecks(ctx context.Context, examID uuid.UUID, studentID int, report *model.EnvironmentReport) (*CheckOutcome, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stage := s.getStage(ctx, examID, studentID)
	stage, err := Transition(stage, EventBeginChecks)
	if err != nil {
		return nil, err
	}
	s.setStage(ctx, examID, studentID, stage)

	exam, err := s.examService.GetDefinition(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	outcome := s.securitySvc.Run(exam, report)

	event := EventChecksPassed
	if !outcome.Passed {
		event = EventChecksFailed
		s.log.Warn().
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Str("failed_check", outcome.FailedCheckID).
			Msg("Security checks failed")
	}
	stage, _ = Transition(stage, event)
	s.setStage(ctx, examID, studentID, stage)

	if raw, jerr := json.Marshal(outcome); jerr == nil {
		s.rdb.Set(ctx, config.CacheKey.SessionChecksKey(examID.String(), studentID), raw, 0)
	}

	return outcome, nil
}

// Start opens the exam attempt. The durable start time comes from the
// submission upsert, so a crashed shell that starts again resumes the
// original countdown instead of resetting it.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stage := s.getStage(ctx, examID, studentID)
	if stage == model.StageExamInProgress {
		// Idempotent restart: the attempt row already exists.
		return s.State(ctx, examID, studentID)
	}
	stage, err := Transition(stage, EventSessionStarted)
	if err != nil {
		return nil, err
	}

	sub, err := s.submissionRepo.UpsertInProgress(ctx, examID, studentID, time.Now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("open attempt: %w", err)
	}

	duration, err := s.examService.GetDurationMinutes(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get duration: %w", err)
	}
	deadline := sub.StartedAt.Add(time.Duration(duration)*time.Minute + s.cfg.DeadlineGrace)

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.SessionStartKey(examID.String(), studentID), sub.StartedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.SessionStageKey(examID.String(), studentID), string(model.StageExamInProgress), 0)
	pipe.ZAdd(ctx, config.CacheKey.SessionDeadlinesKey(), redis.Z{
		Score:  float64(deadline.Unix()),
		Member: config.CacheKey.DeadlineMember(examID.String(), studentID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record session start: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Time("started_at", sub.StartedAt).
		Msg("Exam session started")

	return s.State(ctx, examID, studentID)
}

// State rebuilds the reload-safe session view from Redis.
func (s *SessionService) State(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	state := &model.SessionState{
		ExamID:          examID,
		StudentID:       studentID,
		Stage:           s.getStage(ctx, examID, studentID),
		Answers:         map[string]string{},
		MarkedForReview: []string{},
	}
	if state.Stage != model.StageExamInProgress && state.Stage != model.StageSubmittingExam {
		return state, nil
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(examID.String(), studentID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	if answers != nil {
		state.Answers = answers
	}

	review, err := s.rdb.SMembers(ctx, config.CacheKey.SessionReviewKey(examID.String(), studentID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read review marks: %w", err)
	}
	if review != nil {
		state.MarkedForReview = review
	}

	if raw, err := s.rdb.Get(ctx, config.CacheKey.SessionIndexKey(examID.String(), studentID)).Result(); err == nil {
		if idx, perr := strconv.Atoi(raw); perr == nil {
			state.QuestionIndex = idx
		}
	}

	left, err := s.TimeLeft(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	state.TimeLeftSeconds = left

	return state, nil
}

// TimeLeft computes the remaining whole seconds of the countdown, clamped at
// zero. The start time comes from Redis with a PostgreSQL fallback that
// self-heals the cache.
func (s *SessionService) TimeLeft(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	startedAt, err := s.startedAt(ctx, examID, studentID)
	if err != nil {
		return 0, err
	}
	duration, err := s.examService.GetDurationMinutes(ctx, examID)
	if err != nil {
		return 0, err
	}

	left := time.Duration(duration)*time.Minute - time.Since(startedAt)
	if left < 0 {
		left = 0
	}
	return int(left.Seconds()), nil
}

func (s *SessionService) startedAt(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	key := config.CacheKey.SessionStartKey(examID.String(), studentID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			return time.Unix(unix, 0), nil
		}
	} else if err != redis.Nil {
		return time.Time{}, fmt.Errorf("read start time: %w", err)
	}

	sub, err := s.submissionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return time.Time{}, fmt.Errorf("start time fallback: %w", err)
	}
	if serr := s.rdb.Set(ctx, key, sub.StartedAt.Unix(), 0).Err(); serr != nil {
		s.log.Warn().Err(serr).Str("exam_id", examID.String()).Int("student_id", studentID).
			Msg("Start time cache heal failed")
	}
	return sub.StartedAt, nil
}

// SaveAnswer records an option selection in the Redis hash and queues it for
// durable persistence. Selections after the countdown hit zero are rejected.
func (s *SessionService) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID, optionID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.requireInProgress(ctx, examID, studentID); err != nil {
		return err
	}
	left, err := s.TimeLeft(ctx, examID, studentID)
	if err != nil {
		return err
	}
	if left <= 0 {
		return ErrTimeExpired
	}

	if err := s.rdb.HSet(ctx, config.CacheKey.SessionAnswersKey(examID.String(), studentID), questionID, optionID).Err(); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}

	payload, err := json.Marshal(answerQueuePayload{
		StudentID:  studentID,
		ExamID:     examID.String(),
		QuestionID: questionID,
		OptionID:   optionID,
		Timestamp:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode answer payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		// The Redis hash already holds the answer; the final submit will
		// persist it even if this enqueue is lost.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Int("student_id", studentID).
			Msg("Answer enqueue failed")
	}
	return nil
}

// Navigate moves the current question index. Backward movement is refused
// when the exam disables backtracking.
func (s *SessionService) Navigate(ctx context.Context, examID uuid.UUID, studentID int, toIndex int) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.requireInProgress(ctx, examID, studentID); err != nil {
		return err
	}

	payload, err := s.examService.GetPayload(ctx, examID)
	if err != nil {
		return fmt.Errorf("get payload: %w", err)
	}
	if toIndex < 0 || toIndex >= len(payload.Questions) {
		return ErrIndexOutOfRange
	}

	key := config.CacheKey.SessionIndexKey(examID.String(), studentID)
	if !payload.AllowBacktracking {
		current := 0
		if raw, gerr := s.rdb.Get(ctx, key).Result(); gerr == nil {
			if idx, perr := strconv.Atoi(raw); perr == nil {
				current = idx
			}
		}
		if toIndex < current {
			return ErrBacktrackingDisabled
		}
	}

	if err := s.rdb.Set(ctx, key, toIndex, 0).Err(); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// MarkReview toggles a question's mark-for-review state.
func (s *SessionService) MarkReview(ctx context.Context, examID uuid.UUID, studentID int, questionID string, marked bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.requireInProgress(ctx, examID, studentID); err != nil {
		return err
	}

	key := config.CacheKey.SessionReviewKey(examID.String(), studentID)
	var err error
	if marked {
		err = s.rdb.SAdd(ctx, key, questionID).Err()
	} else {
		err = s.rdb.SRem(ctx, key, questionID).Err()
	}
	if err != nil {
		return fmt.Errorf("save review mark: %w", err)
	}
	return nil
}

// Submit finalizes the attempt: snapshot the Redis answers, grade, persist,
// then advance to examCompleted and drop the hot session keys. A submit that
// fails downstream leaves the session in submittingExam so a retry is legal;
// a submit against a completed attempt returns the stored result.
func (s *SessionService) Submit(ctx context.Context, examID uuid.UUID, studentID int) (*model.SubmitResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stage := s.getStage(ctx, examID, studentID)
	switch stage {
	case model.StageExamInProgress:
		stage, _ = Transition(stage, EventSubmit)
		s.setStage(ctx, examID, studentID, stage)
	case model.StageSubmittingExam, model.StageExamCompleted:
		// Retry or duplicate: Finalize resolves both against the durable
		// record.
	default:
		return nil, ErrNotInProgress
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(examID.String(), studentID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("snapshot answers: %w", err)
	}
	startedAt, err := s.startedAt(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	result, err := s.submissionSvc.Finalize(ctx, examID, studentID, answers, startedAt)
	if err != nil {
		if !errors.Is(err, ErrSubmitInFlight) {
			s.log.Error().Err(err).Str("exam_id", examID.String()).Int("student_id", studentID).
				Msg("Submission failed, session held in submitting stage")
		}
		return nil, err
	}

	s.setStage(ctx, examID, studentID, model.StageExamCompleted)
	s.clearHotKeys(ctx, examID, studentID)

	return result, nil
}

// Fail moves the session into the terminal error stage, for unrecoverable
// faults reported by the shell or detected server side.
func (s *SessionService) Fail(ctx context.Context, examID uuid.UUID, studentID int, reason string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stage := s.getStage(ctx, examID, studentID)
	stage, err := Transition(stage, EventFatalError)
	if err != nil {
		return err
	}
	s.setStage(ctx, examID, studentID, stage)
	s.rdb.ZRem(ctx, config.CacheKey.SessionDeadlinesKey(),
		config.CacheKey.DeadlineMember(examID.String(), studentID))

	s.log.Error().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("reason", reason).
		Msg("Session entered error stage")
	return nil
}

// ExamPayload exposes the cached student-facing exam bundle.
func (s *SessionService) ExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	return s.examService.GetPayload(ctx, examID)
}

// Stage returns the persisted lifecycle stage for a session, defaulting to
// initializing when none is recorded.
func (s *SessionService) Stage(ctx context.Context, examID uuid.UUID, studentID int) model.Stage {
	return s.getStage(ctx, examID, studentID)
}

func (s *SessionService) requireInProgress(ctx context.Context, examID uuid.UUID, studentID int) error {
	stage := s.getStage(ctx, examID, studentID)
	if stage == model.StageExamCompleted {
		return ErrAlreadySubmitted
	}
	if stage != model.StageExamInProgress {
		return ErrNotInProgress
	}
	return nil
}

func (s *SessionService) getStage(ctx context.Context, examID uuid.UUID, studentID int) model.Stage {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionStageKey(examID.String(), studentID)).Result()
	if err != nil {
		return model.StageInitializing
	}
	return model.Stage(raw)
}

func (s *SessionService) setStage(ctx context.Context, examID uuid.UUID, studentID int, stage model.Stage) {
	if err := s.rdb.Set(ctx, config.CacheKey.SessionStageKey(examID.String(), studentID), string(stage), 0).Err(); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID.String()).Int("student_id", studentID).
			Str("stage", string(stage)).Msg("Stage write failed")
	}
}

func (s *SessionService) clearHotKeys(ctx context.Context, examID uuid.UUID, studentID int) {
	eid := examID.String()
	if err := s.rdb.Del(ctx,
		config.CacheKey.SessionAnswersKey(eid, studentID),
		config.CacheKey.SessionReviewKey(eid, studentID),
		config.CacheKey.SessionIndexKey(eid, studentID),
		config.CacheKey.SessionChecksKey(eid, studentID),
		config.CacheKey.SessionStartKey(eid, studentID),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", eid).Int("student_id", studentID).
			Msg("Hot key cleanup failed")
	}
}
