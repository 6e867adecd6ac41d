package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/internal/repository"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
)

type applicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	Transition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionResult, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ApplicationDetail, error)
	StatusLog(ctx context.Context, applicationID string) ([]models.StatusLogEntry, error)
}

type bookableTourReader interface {
	FindBookableByID(ctx context.Context, id string) (*models.Tour, error)
}

type applicantReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type statusNotifier interface {
	NotifyStatusChange(notification models.StatusChangeNotification)
}

type occupancyInvalidator interface {
	InvalidateOccupancy(ctx context.Context, tourID string)
}

// SubmitApplicationRequest describes a submission payload. StudentID is
// optional: guest submissions carry only name and contact.
type SubmitApplicationRequest struct {
	TourID           string  `json:"tour_id" validate:"required"`
	StudentID        *string `json:"student_id"`
	ApplicantName    string  `json:"applicant_name" validate:"required"`
	ApplicantContact string  `json:"applicant_contact" validate:"required"`
	Note             string  `json:"note"`
}

// TransitionStatusRequest describes a manager-driven status change. Sending
// the current status updates the manager note without recording a transition.
type TransitionStatusRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required"`
	Note   string                   `json:"note"`
}

// ApplicationHistory bundles an application with its status log.
type ApplicationHistory struct {
	Application models.ApplicationDetail `json:"application"`
	StatusLog   []models.StatusLogEntry  `json:"status_log"`
}

// ApplicationService is the application lifecycle engine: it owns submission
// and the moderated status workflow. Capacity is enforced against CONFIRMED
// applications only; NEW and CONTACTED do not soft-reserve seats, so managers
// can triage more applications than there are seats and the authoritative
// check happens when a transition enters CONFIRMED.
type ApplicationService struct {
	apps      applicationRepository
	tours     bookableTourReader
	students  applicantReader
	notifier  statusNotifier
	occupancy occupancyInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(apps applicationRepository, tours bookableTourReader, students applicantReader,
	notifier statusNotifier, occupancy occupancyInvalidator, validate *validator.Validate,
	logger *zap.Logger, metrics *MetricsService) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		apps:      apps,
		tours:     tours,
		students:  students,
		notifier:  notifier,
		occupancy: occupancy,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit creates a new application in status NEW. The conflict guard and the
// capacity check run inside the repository transaction; the reads here only
// produce precise error messages before the atomic attempt.
func (s *ApplicationService) Submit(ctx context.Context, req SubmitApplicationRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	if _, err := s.tours.FindBookableByID(ctx, req.TourID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTourNotBookable, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tour")
	}

	if req.StudentID != nil {
		student, err := s.students.FindByID(ctx, *req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if !student.Active {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student account is inactive")
		}
	}

	app := &models.Application{
		TourID:           req.TourID,
		StudentID:        req.StudentID,
		ApplicantName:    req.ApplicantName,
		ApplicantContact: req.ApplicantContact,
		ApplicantNote:    req.Note,
	}

	if err := s.apps.Create(ctx, app); err != nil {
		return nil, s.mapSubmitError(err)
	}

	s.metrics.RecordSubmission()

	detail, err := s.apps.FindDetailByID(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

// Transition applies a manager-driven status change and, once it committed,
// runs the post-commit side effects: occupancy cache invalidation and the
// best-effort notification.
func (s *ApplicationService) Transition(ctx context.Context, applicationID string, req TransitionStatusRequest, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}

	params := repository.TransitionParams{
		ApplicationID: applicationID,
		ToStatus:      req.Status,
		Note:          req.Note,
	}
	if actor != nil {
		params.ChangedBy = &actor.UserID
	}

	result, err := s.apps.Transition(ctx, params)
	if err != nil {
		return nil, s.mapTransitionError(err)
	}

	detail, err := s.apps.FindDetailByID(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}

	if result.Changed {
		s.metrics.RecordTransition(result.FromStatus, result.Application.Status)

		seatCountChanged := result.FromStatus == models.ApplicationStatusConfirmed ||
			result.Application.Status == models.ApplicationStatusConfirmed
		if seatCountChanged && s.occupancy != nil {
			s.occupancy.InvalidateOccupancy(ctx, result.Application.TourID)
		}

		if s.notifier != nil {
			s.notifier.NotifyStatusChange(models.StatusChangeNotification{
				ApplicationID:  detail.ID,
				StudentContact: detail.ApplicantContact,
				TourLabel:      detail.TourTitle,
				TourDate:       detail.TourDate,
				NewStatus:      detail.Status,
				Note:           req.Note,
			})
		}
	}

	return detail, nil
}

// List returns applications with pagination metadata.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}
	applications, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return applications, pagination, nil
}

// Get returns an application together with its status log.
func (s *ApplicationService) Get(ctx context.Context, id string) (*ApplicationHistory, error) {
	detail, err := s.apps.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	log, err := s.apps.StatusLog(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status log")
	}
	return &ApplicationHistory{Application: *detail, StatusLog: log}, nil
}

// ListByStudent returns all applications submitted by a student.
func (s *ApplicationService) ListByStudent(ctx context.Context, studentID string) ([]models.ApplicationDetail, error) {
	applications, err := s.apps.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student applications")
	}
	return applications, nil
}

func (s *ApplicationService) mapSubmitError(err error) error {
	switch {
	case errors.Is(err, repository.ErrTourNotFound), errors.Is(err, repository.ErrTourNotPublished):
		return appErrors.Clone(appErrors.ErrTourNotBookable, "")
	case errors.Is(err, repository.ErrDateConflict):
		return appErrors.Clone(appErrors.ErrDateConflict, "")
	case errors.Is(err, repository.ErrCapacityExceeded):
		s.metrics.RecordSeatRejection(SeatRejectionStageSubmit)
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	case repository.IsRetryable(err):
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
}

func (s *ApplicationService) mapTransitionError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "application not found")
	case errors.Is(err, repository.ErrIllegalTransition):
		return appErrors.Clone(appErrors.ErrIllegalTransition, "")
	case errors.Is(err, repository.ErrCapacityExceeded):
		s.metrics.RecordSeatRejection(SeatRejectionStageConfirm)
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "another application already holds the last seat")
	case errors.Is(err, repository.ErrTourNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "tour not found")
	case repository.IsRetryable(err):
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition application")
	}
}
