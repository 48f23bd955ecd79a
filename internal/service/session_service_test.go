package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// newTestSessionService wires a SessionService to miniredis with the fake
// grading backend. Submit never touches the other collaborators, so they
// stay nil.
func newTestSessionService(t *testing.T, questions *fakeQuestionLister, store *fakeSubmissionStore) (*SessionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{NetworkTimeout: 5 * time.Second, SubmitLockTTL: time.Minute}
	sub := NewSubmissionService(cfg, rdb, questions, store, &fakeFlagTrail{}, zerolog.Nop())
	svc := NewSessionService(cfg, rdb, nil, nil, nil, sub, nil, nil, zerolog.Nop())
	return svc, mr
}

func seedLiveAttempt(t *testing.T, mr *miniredis.Miniredis, examID uuid.UUID, studentID int, stage model.Stage, answers map[string]string) {
	t.Helper()
	eid := examID.String()
	require.NoError(t, mr.Set(config.CacheKey.SessionStageKey(eid, studentID), string(stage)))
	require.NoError(t, mr.Set(config.CacheKey.SessionStartKey(eid, studentID),
		strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)))
	for q, opt := range answers {
		mr.HSet(config.CacheKey.SessionAnswersKey(eid, studentID), q, opt)
	}
}

func TestScheduleWindow(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		exam    model.Exam
		now     time.Time
		wantErr error
	}{
		{"inside window", model.Exam{ScheduledStart: &start, ScheduledEnd: &end}, start.Add(30 * time.Minute), nil},
		{"before start", model.Exam{ScheduledStart: &start, ScheduledEnd: &end}, start.Add(-time.Minute), ErrOutsideSchedule},
		{"after end", model.Exam{ScheduledStart: &start, ScheduledEnd: &end}, end.Add(time.Minute), ErrOutsideSchedule},
		{"exactly at start", model.Exam{ScheduledStart: &start, ScheduledEnd: &end}, start, nil},
		{"no window set", model.Exam{}, time.Now(), nil},
		{"only start, satisfied", model.Exam{ScheduledStart: &start}, start.Add(24 * time.Hour), nil},
		{"only end, expired", model.Exam{ScheduledEnd: &end}, end.Add(time.Hour), ErrOutsideSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scheduleWindow(&tt.exam, tt.now)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSubmitRejectedOutsideExam(t *testing.T) {
	stages := []model.Stage{
		model.StageInitializing,
		model.StageReadyToStart,
		model.StagePerformingSecurityChecks,
		model.StageError,
	}

	for _, stage := range stages {
		t.Run(string(stage), func(t *testing.T) {
			svc, mr := newTestSessionService(t, &fakeQuestionLister{}, &fakeSubmissionStore{})
			examID := uuid.New()
			if stage != model.StageInitializing {
				require.NoError(t, mr.Set(config.CacheKey.SessionStageKey(examID.String(), 7), string(stage)))
			}

			_, err := svc.Submit(context.Background(), examID, 7)
			require.ErrorIs(t, err, ErrNotInProgress)
		})
	}
}

func TestSubmitGradesAndCompletes(t *testing.T) {
	questions := &fakeQuestionLister{questions: []model.Question{question("a", 1), question("b", 1)}}
	store := &fakeSubmissionStore{}
	svc, mr := newTestSessionService(t, questions, store)

	examID := uuid.New()
	seedLiveAttempt(t, mr, examID, 7, model.StageExamInProgress, map[string]string{
		questions.questions[0].ID.String(): "a",
		questions.questions[1].ID.String(): "x",
	})

	result, err := svc.Submit(context.Background(), examID, 7)
	require.NoError(t, err)
	require.Equal(t, 50.0, result.Score)

	stage, _ := mr.Get(config.CacheKey.SessionStageKey(examID.String(), 7))
	require.Equal(t, string(model.StageExamCompleted), stage)
	require.False(t, mr.Exists(config.CacheKey.SessionAnswersKey(examID.String(), 7)),
		"hot answers must be dropped after completion")
}

func TestSubmitRetryAfterFailedPersist(t *testing.T) {
	questions := &fakeQuestionLister{questions: []model.Question{question("a", 1)}}
	store := &fakeSubmissionStore{}
	svc, mr := newTestSessionService(t, questions, store)

	// A previous attempt left the session parked in submittingExam.
	examID := uuid.New()
	seedLiveAttempt(t, mr, examID, 7, model.StageSubmittingExam, map[string]string{
		questions.questions[0].ID.String(): "a",
	})

	result, err := svc.Submit(context.Background(), examID, 7)
	require.NoError(t, err)
	require.Equal(t, 100.0, result.Score)

	stage, _ := mr.Get(config.CacheKey.SessionStageKey(examID.String(), 7))
	require.Equal(t, string(model.StageExamCompleted), stage)
}

func TestSubmitDuplicateAfterCompletion(t *testing.T) {
	questions := &fakeQuestionLister{questions: []model.Question{question("a", 1)}}
	store := &fakeSubmissionStore{}
	svc, mr := newTestSessionService(t, questions, store)

	examID := uuid.New()
	seedLiveAttempt(t, mr, examID, 7, model.StageExamInProgress, map[string]string{
		questions.questions[0].ID.String(): "a",
	})

	first, err := svc.Submit(context.Background(), examID, 7)
	require.NoError(t, err)
	require.Equal(t, 100.0, first.Score)
	store.existing = store.upserted
	store.upserted = nil

	// The shell retries after the submit lock expired. The answers hash is
	// gone, so a re-grade would score zero; the stored result must win.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(config.CacheKey.SessionStartKey(examID.String(), 7),
		strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)))

	second, err := svc.Submit(context.Background(), examID, 7)
	require.NoError(t, err)
	require.Equal(t, first.Score, second.Score)
	require.Nil(t, store.upserted, "duplicate submit must not overwrite the attempt")
}
