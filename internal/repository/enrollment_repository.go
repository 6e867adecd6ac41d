package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tourdesk/booking-api/internal/models"
)

// EnrollmentRepository reads and reconciles the derived enrollment rows. The
// rows themselves are written by the transition transaction in
// ApplicationRepository so that enrollment state can never diverge from a
// committed application transition.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByStudent returns a student's enrollments with tour context, upcoming
// tours first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.tour_id, e.status, e.created_at, e.updated_at,
t.title AS tour_title, t.tour_date AS tour_date
FROM enrollments e
JOIN tours t ON t.id = e.tour_id
WHERE e.student_id = $1
ORDER BY t.tour_date DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByStudentAndTour returns the enrollment for a (student, tour) pair.
func (r *EnrollmentRepository) FindByStudentAndTour(ctx context.Context, studentID, tourID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, tour_id, status, created_at, updated_at
FROM enrollments WHERE student_id = $1 AND tour_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, tourID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ReconcileCompleted moves a student's ENROLLED rows to COMPLETED for every
// tour whose date is strictly in the past. The update only ever goes
// ENROLLED -> COMPLETED, so it is idempotent and safe to run concurrently
// with itself.
func (r *EnrollmentRepository) ReconcileCompleted(ctx context.Context, studentID string) (int64, error) {
	const query = `UPDATE enrollments e
SET status = $2, updated_at = $3
FROM tours t
WHERE t.id = e.tour_id AND e.student_id = $1 AND e.status = $4 AND t.tour_date < CURRENT_DATE`
	res, err := r.db.ExecContext(ctx, query, studentID, models.EnrollmentStatusCompleted, time.Now().UTC(), models.EnrollmentStatusEnrolled)
	if err != nil {
		return 0, fmt.Errorf("reconcile completed enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile rows affected: %w", err)
	}
	return affected, nil
}
