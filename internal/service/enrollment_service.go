package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/tourdesk/booking-api/internal/models"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
)

type enrollmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ReconcileCompleted(ctx context.Context, studentID string) (int64, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollmentService exposes the derived enrollment records. Enrollments are a
// projection of application history; this service never creates them, it only
// reads and ages them.
type EnrollmentService struct {
	repo     enrollmentRepository
	students studentReader
	logger   *zap.Logger
	metrics  *MetricsService
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, logger *zap.Logger, metrics *MetricsService) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, logger: logger, metrics: metrics}
}

// ListByStudent reconciles past-dated enrollments to COMPLETED and then
// returns the student's enrollment list. Reconciliation is idempotent, so a
// repeated or concurrent read settles on the same state.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	completed, err := s.repo.ReconcileCompleted(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile enrollments")
	}
	if completed > 0 {
		s.metrics.RecordReconciledEnrollments(completed)
		s.logger.Info("enrollments aged to completed",
			zap.String("student_id", studentID),
			zap.Int64("count", completed))
	}

	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
