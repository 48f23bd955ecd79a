package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// SubmissionRepository handles the authoritative attempt records. Rows are
// keyed uniquely by (exam_id, student_id); every write is an upsert.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// HasCompleted reports whether a COMPLETED submission exists for the pair.
// This backs the token validator's isAlreadySubmitted answer.
func (r *SubmissionRepository) HasCompleted(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM submissions
		   WHERE exam_id = $1 AND student_id = $2 AND status = 'COMPLETED'
		 )`, examID, studentID,
	).Scan(&exists)
	return exists, err
}

// GetByExamAndStudent retrieves the submission row for the pair.
func (r *SubmissionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	s := &model.Submission{}
	var rawAnswers []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, answers, status, score,
		        marks_obtained, total_possible_marks, started_at, submitted_at
		 FROM submissions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(
		&s.ID, &s.ExamID, &s.StudentID, &rawAnswers, &s.Status, &s.Score,
		&s.MarksObtained, &s.TotalPossibleMarks, &s.StartedAt, &s.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawAnswers) > 0 {
		if err := json.Unmarshal(rawAnswers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return s, nil
}

// UpsertInProgress records the authoritative start-of-attempt marker. The
// conflict clause only touches IN_PROGRESS rows, so a COMPLETED attempt can
// never be reopened; in that case pgx.ErrNoRows is returned.
func (r *SubmissionRepository) UpsertInProgress(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.Submission, error) {
	s := &model.Submission{
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.SubmissionStatusInProgress,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, status, started_at)
		 VALUES ($1, $2, 'IN_PROGRESS', $3)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET started_at = submissions.started_at
		 WHERE submissions.status = 'IN_PROGRESS'
		 RETURNING id, started_at`,
		examID, studentID, startedAt,
	).Scan(&s.ID, &s.StartedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertCompleted finalizes the attempt: answers snapshot, server-computed
// score, and submitted_at in a single idempotent write. A retried submit
// overwrites with equivalent data rather than creating a duplicate row.
func (r *SubmissionRepository) UpsertCompleted(ctx context.Context, sub *model.Submission) error {
	rawAnswers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	now := time.Now()
	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions
		   (exam_id, student_id, answers, status, score,
		    marks_obtained, total_possible_marks, started_at, submitted_at)
		 VALUES ($1, $2, $3::jsonb, 'COMPLETED', $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET answers              = EXCLUDED.answers,
		     status               = 'COMPLETED',
		     score                = EXCLUDED.score,
		     marks_obtained       = EXCLUDED.marks_obtained,
		     total_possible_marks = EXCLUDED.total_possible_marks,
		     submitted_at         = EXCLUDED.submitted_at
		 RETURNING id, submitted_at`,
		sub.ExamID, sub.StudentID, rawAnswers, sub.Score,
		sub.MarksObtained, sub.TotalPossibleMarks, sub.StartedAt, now,
	).Scan(&sub.ID, &sub.SubmittedAt)
	if err != nil {
		return err
	}
	sub.Status = model.SubmissionStatusCompleted
	return nil
}
