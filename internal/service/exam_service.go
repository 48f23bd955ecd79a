package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

// ExamService serves exam definitions and the student-facing payload.
// Payloads are cached in Redis so session traffic bypasses PostgreSQL;
// the correct answers never leave the server.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetDefinition retrieves the exam definition from PostgreSQL.
func (s *ExamService) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, examID)
}

// GetPayload returns the student-facing exam bundle, from cache when warm.
func (s *ExamService) GetPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		payload := &model.ExamPayload{}
		if jerr := json.Unmarshal([]byte(raw), payload); jerr == nil {
			return payload, nil
		}
		// Corrupt cache entry: fall through and rebuild.
	} else if err != redis.Nil {
		return nil, fmt.Errorf("payload cache read: %w", err)
	}

	return s.warmPayload(ctx, examID)
}

// GetDurationMinutes returns the exam duration, from cache when warm.
func (s *ExamService) GetDurationMinutes(ctx context.Context, examID uuid.UUID) (int, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID.String())).Result()
	if err == nil {
		if minutes, perr := strconv.Atoi(raw); perr == nil {
			return minutes, nil
		}
	} else if err != redis.Nil {
		return 0, fmt.Errorf("duration cache read: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return 0, err
	}
	s.cacheDuration(ctx, examID, exam.DurationMinutes)
	return exam.DurationMinutes, nil
}

// warmPayload builds the payload from PostgreSQL and self-heals the cache.
func (s *ExamService) warmPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	payload := &model.ExamPayload{
		ExamID:                  exam.ID,
		Title:                   exam.Title,
		DurationMinutes:         exam.DurationMinutes,
		AllowBacktracking:       exam.AllowBacktracking,
		WebcamProctoringEnabled: exam.WebcamProctoringEnabled,
		Questions:               make([]model.QuestionForStudent, 0, len(questions)),
	}
	for i := range questions {
		payload.Questions = append(payload.Questions, questions[i].ForStudent())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(examID.String()), raw, 0).Err(); err != nil {
		// Cache miss next time; not fatal.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Payload cache write failed")
	}
	s.cacheDuration(ctx, examID, exam.DurationMinutes)

	return payload, nil
}

func (s *ExamService) cacheDuration(ctx context.Context, examID uuid.UUID, minutes int) {
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDurationKey(examID.String()), minutes, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Duration cache write failed")
	}
}
