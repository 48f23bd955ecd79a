package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ─────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────

type fakeQuestionLister struct {
	questions []model.Question
	err       error
}

func (f *fakeQuestionLister) ListByExam(_ context.Context, _ uuid.UUID) ([]model.Question, error) {
	return f.questions, f.err
}

type fakeSubmissionStore struct {
	existing  *model.Submission
	upsertErr error
	upserted  *model.Submission
}

func (f *fakeSubmissionStore) GetByExamAndStudent(_ context.Context, _ uuid.UUID, _ int) (*model.Submission, error) {
	if f.existing == nil {
		return nil, pgx.ErrNoRows
	}
	return f.existing, nil
}

func (f *fakeSubmissionStore) UpsertCompleted(_ context.Context, sub *model.Submission) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	sub.ID = uuid.New()
	sub.Status = model.SubmissionStatusCompleted
	f.upserted = sub
	return nil
}

type fakeFlagTrail struct {
	count int64
}

func (f *fakeFlagTrail) CountByAttempt(_ context.Context, _ uuid.UUID, _ int) (int64, error) {
	return f.count, nil
}

func question(correct string, marks float64) model.Question {
	return model.Question{
		ID:              uuid.New(),
		CorrectOptionID: correct,
		Marks:           marks,
	}
}

// ─────────────────────────────────────────────
// Score
// ─────────────────────────────────────────────

func TestScoreAllCorrect(t *testing.T) {
	questions := []model.Question{question("a", 1), question("b", 1), question("c", 2)}
	answers := map[string]string{
		questions[0].ID.String(): "a",
		questions[1].ID.String(): "b",
		questions[2].ID.String(): "c",
	}

	score, obtained, total := Score(questions, answers)
	require.Equal(t, 100.0, score)
	require.Equal(t, 4.0, obtained)
	require.Equal(t, 4.0, total)
}

func TestScorePartialWithWeightedMarks(t *testing.T) {
	questions := []model.Question{question("a", 1), question("b", 2), question("c", 3)}
	answers := map[string]string{
		questions[0].ID.String(): "a", // correct, 1 mark
		questions[1].ID.String(): "x", // wrong
		// third question unanswered
	}

	score, obtained, total := Score(questions, answers)
	require.Equal(t, 1.0, obtained)
	require.Equal(t, 6.0, total)
	require.Equal(t, 16.67, score)
}

func TestScoreThreeOfFiveCorrect(t *testing.T) {
	questions := make([]model.Question, 5)
	for i := range questions {
		questions[i] = question("a", 2)
	}
	answers := map[string]string{
		questions[0].ID.String(): "a",
		questions[1].ID.String(): "a",
		questions[2].ID.String(): "a",
		questions[3].ID.String(): "b",
	}

	score, obtained, total := Score(questions, answers)
	require.Equal(t, 60.0, score)
	require.Equal(t, 6.0, obtained)
	require.Equal(t, 10.0, total)
}

func TestScoreNoAnswers(t *testing.T) {
	questions := []model.Question{question("a", 1), question("b", 1)}

	score, obtained, total := Score(questions, map[string]string{})
	require.Equal(t, 0.0, score)
	require.Equal(t, 0.0, obtained)
	require.Equal(t, 2.0, total)
}

func TestScoreZeroTotalMarks(t *testing.T) {
	score, obtained, total := Score(nil, map[string]string{"x": "a"})
	require.Equal(t, 0.0, score)
	require.Equal(t, 0.0, obtained)
	require.Equal(t, 0.0, total)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	questions := []model.Question{question("a", 1), question("b", 1), question("c", 1)}
	answers := map[string]string{questions[0].ID.String(): "a"}

	score, _, _ := Score(questions, answers)
	require.Equal(t, 33.33, score)
}

// ─────────────────────────────────────────────
// Finalize
// ─────────────────────────────────────────────

func newTestSubmissionService(t *testing.T, questions *fakeQuestionLister, store *fakeSubmissionStore) (*SubmissionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{SubmitLockTTL: time.Minute}
	svc := NewSubmissionService(cfg, rdb, questions, store, &fakeFlagTrail{}, zerolog.Nop())
	return svc, mr
}

func TestFinalizePersistsScoredAttempt(t *testing.T) {
	questions := &fakeQuestionLister{questions: []model.Question{question("a", 2), question("b", 2)}}
	store := &fakeSubmissionStore{}
	svc, mr := newTestSubmissionService(t, questions, store)

	examID := uuid.New()
	answers := map[string]string{questions.questions[0].ID.String(): "a"}
	startedAt := time.Now().Add(-10 * time.Minute)

	result, err := svc.Finalize(context.Background(), examID, 42, answers, startedAt)
	require.NoError(t, err)
	require.Equal(t, 50.0, result.Score)
	require.Equal(t, 2.0, result.MarksObtained)
	require.Equal(t, 4.0, result.TotalPossibleMarks)

	require.NotNil(t, store.upserted)
	require.Equal(t, examID, store.upserted.ExamID)
	require.Equal(t, 42, store.upserted.StudentID)
	require.Equal(t, startedAt, store.upserted.StartedAt)

	// Winner keeps the lock until TTL; only an error releases it.
	require.True(t, mr.Exists(config.CacheKey.SubmitLockKey(examID.String(), 42)))
}

func TestFinalizeContendedReturnsStoredResult(t *testing.T) {
	examID := uuid.New()
	store := &fakeSubmissionStore{existing: &model.Submission{
		ID:                 uuid.New(),
		ExamID:             examID,
		StudentID:          7,
		Status:             model.SubmissionStatusCompleted,
		Score:              75,
		MarksObtained:      3,
		TotalPossibleMarks: 4,
	}}
	svc, mr := newTestSubmissionService(t, &fakeQuestionLister{}, store)

	// Simulate the other path holding the lock.
	require.NoError(t, mr.Set(config.CacheKey.SubmitLockKey(examID.String(), 7), "1"))

	result, err := svc.Finalize(context.Background(), examID, 7, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 75.0, result.Score)
	require.Nil(t, store.upserted, "loser must not re-grade")
}

func TestFinalizeContendedWhileInFlight(t *testing.T) {
	examID := uuid.New()
	svc, mr := newTestSubmissionService(t, &fakeQuestionLister{}, &fakeSubmissionStore{})

	require.NoError(t, mr.Set(config.CacheKey.SubmitLockKey(examID.String(), 7), "1"))

	_, err := svc.Finalize(context.Background(), examID, 7, nil, time.Now())
	require.ErrorIs(t, err, ErrSubmitInFlight)
}

func TestFinalizeReleasesLockOnPersistError(t *testing.T) {
	examID := uuid.New()
	store := &fakeSubmissionStore{upsertErr: errors.New("db down")}
	svc, mr := newTestSubmissionService(t, &fakeQuestionLister{}, store)

	_, err := svc.Finalize(context.Background(), examID, 7, nil, time.Now())
	require.Error(t, err)
	require.False(t, mr.Exists(config.CacheKey.SubmitLockKey(examID.String(), 7)),
		"lock must be released so a retry is possible")
}

func TestFinalizeClearsDeadlineEntry(t *testing.T) {
	examID := uuid.New()
	svc, mr := newTestSubmissionService(t, &fakeQuestionLister{}, &fakeSubmissionStore{})

	member := config.CacheKey.DeadlineMember(examID.String(), 7)
	mr.ZAdd(config.CacheKey.SessionDeadlinesKey(), float64(time.Now().Unix()), member)

	_, err := svc.Finalize(context.Background(), examID, 7, nil, time.Now())
	require.NoError(t, err)

	members, _ := mr.ZMembers(config.CacheKey.SessionDeadlinesKey())
	require.NotContains(t, members, member)
}

func TestFinalizeSecondCallAfterTTLIsIdempotent(t *testing.T) {
	questions := &fakeQuestionLister{questions: []model.Question{question("a", 1)}}
	store := &fakeSubmissionStore{}
	svc, mr := newTestSubmissionService(t, questions, store)

	examID := uuid.New()
	answers := map[string]string{questions.questions[0].ID.String(): "a"}

	first, err := svc.Finalize(context.Background(), examID, 7, answers, time.Now())
	require.NoError(t, err)
	require.Equal(t, 100.0, first.Score)
	store.existing = store.upserted
	store.upserted = nil

	// Lock expired; a late retry hits Finalize again — after completion the
	// hot answers hash is gone, so the retry carries an empty snapshot.
	mr.FastForward(2 * time.Minute)

	second, err := svc.Finalize(context.Background(), examID, 7, map[string]string{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, first.Score, second.Score, "stored grade must win over an empty re-grade")
	require.Nil(t, store.upserted, "completed attempt must not be overwritten")
}
