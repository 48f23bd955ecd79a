package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FlaggedEventRepository handles persisted proctoring incidents.
type FlaggedEventRepository struct {
	pool *pgxpool.Pool
}

// NewFlaggedEventRepository creates a new FlaggedEventRepository.
func NewFlaggedEventRepository(pool *pgxpool.Pool) *FlaggedEventRepository {
	return &FlaggedEventRepository{pool: pool}
}

// CountByAttempt returns the incident total for one attempt. Logged as a
// diagnostic when the attempt is finalized.
func (r *FlaggedEventRepository) CountByAttempt(ctx context.Context, examID uuid.UUID, studentID int) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM flagged_events
		 WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(&count)
	return count, err
}
