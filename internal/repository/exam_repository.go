package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam definition by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, allow_backtracking,
		        webcam_proctoring_enabled, scheduled_start, scheduled_end,
		        created_at, updated_at
		 FROM exams
		 WHERE id = $1`, id,
	).Scan(
		&e.ID, &e.Title, &e.DurationMinutes, &e.AllowBacktracking,
		&e.WebcamProctoringEnabled, &e.ScheduledStart, &e.ScheduledEnd,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
