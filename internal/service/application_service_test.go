package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/internal/repository"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
)

type mockApplicationRepo struct {
	created          *models.Application
	createErr        error
	transitionResult *repository.TransitionResult
	transitionErr    error
	lastParams       repository.TransitionParams
	details          map[string]models.ApplicationDetail
	statusLog        []models.StatusLogEntry
	listResp         []models.ApplicationDetail
	listTotal        int
	byStudent        []models.ApplicationDetail
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if m.createErr != nil {
		return m.createErr
	}
	if app.ID == "" {
		app.ID = "app-1"
	}
	app.Status = models.ApplicationStatusNew
	m.created = app
	return nil
}

func (m *mockApplicationRepo) Transition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionResult, error) {
	m.lastParams = params
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	return m.transitionResult, nil
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	return m.listResp, m.listTotal, nil
}

func (m *mockApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if detail, ok := m.details[id]; ok {
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ApplicationDetail, error) {
	return m.byStudent, nil
}

func (m *mockApplicationRepo) StatusLog(ctx context.Context, applicationID string) ([]models.StatusLogEntry, error) {
	return m.statusLog, nil
}

type mockBookableTours struct {
	tours map[string]*models.Tour
}

func (m *mockBookableTours) FindBookableByID(ctx context.Context, id string) (*models.Tour, error) {
	if tour, ok := m.tours[id]; ok {
		return tour, nil
	}
	return nil, sql.ErrNoRows
}

type mockApplicants struct {
	students map[string]*models.Student
}

func (m *mockApplicants) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := m.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	sent []models.StatusChangeNotification
}

func (m *mockNotifier) NotifyStatusChange(notification models.StatusChangeNotification) {
	m.sent = append(m.sent, notification)
}

type mockInvalidator struct {
	tourIDs []string
}

func (m *mockInvalidator) InvalidateOccupancy(ctx context.Context, tourID string) {
	m.tourIDs = append(m.tourIDs, tourID)
}

var testTourDate = time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

func newApplicationFixture() (*ApplicationService, *mockApplicationRepo, *mockNotifier, *mockInvalidator) {
	repo := &mockApplicationRepo{
		details: map[string]models.ApplicationDetail{
			"app-1": {
				Application: models.Application{
					ID:               "app-1",
					TourID:           "tour-1",
					ApplicantName:    "Sari Dewi",
					ApplicantContact: "sari@example.com",
					Status:           models.ApplicationStatusNew,
				},
				TourTitle: "Harbour Walk",
				TourDate:  testTourDate,
			},
		},
	}
	tours := &mockBookableTours{tours: map[string]*models.Tour{
		"tour-1": {ID: "tour-1", Title: "Harbour Walk", TourDate: testTourDate, Capacity: 30, Published: true},
	}}
	students := &mockApplicants{students: map[string]*models.Student{
		"student-1": {ID: "student-1", FullName: "Sari Dewi", Active: true},
		"student-2": {ID: "student-2", FullName: "Left School", Active: false},
	}}
	notifier := &mockNotifier{}
	invalidator := &mockInvalidator{}
	svc := NewApplicationService(repo, tours, students, notifier, invalidator, nil, nil, nil)
	return svc, repo, notifier, invalidator
}

func TestApplicationServiceSubmit(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture()

	studentID := "student-1"
	detail, err := svc.Submit(context.Background(), SubmitApplicationRequest{
		TourID:           "tour-1",
		StudentID:        &studentID,
		ApplicantName:    "Sari Dewi",
		ApplicantContact: "sari@example.com",
		Note:             "vegetarian lunch please",
	})
	require.NoError(t, err)
	assert.Equal(t, "app-1", detail.ID)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.ApplicationStatusNew, repo.created.Status)
	assert.Equal(t, "vegetarian lunch please", repo.created.ApplicantNote)
}

func TestApplicationServiceSubmitValidation(t *testing.T) {
	svc, _, _, _ := newApplicationFixture()

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{TourID: "tour-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitUnknownTour(t *testing.T) {
	svc, _, _, _ := newApplicationFixture()

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{
		TourID:           "tour-404",
		ApplicantName:    "Sari Dewi",
		ApplicantContact: "sari@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTourNotBookable.Code, appErrors.FromError(err).Code)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestApplicationServiceSubmitInactiveStudent(t *testing.T) {
	svc, _, _, _ := newApplicationFixture()

	studentID := "student-2"
	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{
		TourID:           "tour-1",
		StudentID:        &studentID,
		ApplicantName:    "Left School",
		ApplicantContact: "left@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		createErr  error
		wantCode   string
		wantStatus int
	}{
		{"capacity", repository.ErrCapacityExceeded, appErrors.ErrCapacityExceeded.Code, http.StatusConflict},
		{"date conflict", repository.ErrDateConflict, appErrors.ErrDateConflict.Code, http.StatusConflict},
		{"unpublished", repository.ErrTourNotPublished, appErrors.ErrTourNotBookable.Code, http.StatusNotFound},
		{"lock timeout", fmt.Errorf("lock tour row: %w", &pq.Error{Code: "55P03"}), appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, _ := newApplicationFixture()
			repo.createErr = tc.createErr

			_, err := svc.Submit(context.Background(), SubmitApplicationRequest{
				TourID:           "tour-1",
				ApplicantName:    "Sari Dewi",
				ApplicantContact: "sari@example.com",
			})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
			assert.Equal(t, tc.wantStatus, appErrors.FromError(err).Status)
		})
	}
}

func TestApplicationServiceTransitionConfirm(t *testing.T) {
	svc, repo, notifier, invalidator := newApplicationFixture()
	repo.transitionResult = &repository.TransitionResult{
		Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusConfirmed},
		FromStatus:  models.ApplicationStatusContacted,
		Changed:     true,
	}
	detail := repo.details["app-1"]
	detail.Status = models.ApplicationStatusConfirmed
	repo.details["app-1"] = detail

	actor := &models.JWTClaims{UserID: "manager-1", Role: models.RoleManager}
	result, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
		Status: models.ApplicationStatusConfirmed,
		Note:   "seat granted",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusConfirmed, result.Status)

	require.NotNil(t, repo.lastParams.ChangedBy)
	assert.Equal(t, "manager-1", *repo.lastParams.ChangedBy)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "app-1", notifier.sent[0].ApplicationID)
	assert.Equal(t, "Harbour Walk", notifier.sent[0].TourLabel)
	assert.Equal(t, models.ApplicationStatusConfirmed, notifier.sent[0].NewStatus)

	assert.Equal(t, []string{"tour-1"}, invalidator.tourIDs)
}

func TestApplicationServiceTransitionNoteOnlySkipsSideEffects(t *testing.T) {
	svc, repo, notifier, invalidator := newApplicationFixture()
	repo.transitionResult = &repository.TransitionResult{
		Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusContacted},
		FromStatus:  models.ApplicationStatusContacted,
		Changed:     false,
	}

	_, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
		Status: models.ApplicationStatusContacted,
		Note:   "no answer yet",
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, invalidator.tourIDs)
}

func TestApplicationServiceTransitionContactLeavesOccupancyAlone(t *testing.T) {
	svc, repo, notifier, invalidator := newApplicationFixture()
	repo.transitionResult = &repository.TransitionResult{
		Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusContacted},
		FromStatus:  models.ApplicationStatusNew,
		Changed:     true,
	}

	_, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
		Status: models.ApplicationStatusContacted,
	}, nil)
	require.NoError(t, err)
	// CONTACTED never changes the confirmed-seat count
	assert.Empty(t, invalidator.tourIDs)
	require.Len(t, notifier.sent, 1)
}

func TestApplicationServiceTransitionDeclineFromConfirmedInvalidates(t *testing.T) {
	svc, repo, _, invalidator := newApplicationFixture()
	repo.transitionResult = &repository.TransitionResult{
		Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusDeclined},
		FromStatus:  models.ApplicationStatusConfirmed,
		Changed:     true,
	}

	_, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
		Status: models.ApplicationStatusDeclined,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tour-1"}, invalidator.tourIDs)
}

func TestApplicationServiceTransitionErrorMapping(t *testing.T) {
	cases := []struct {
		name          string
		transitionErr error
		wantCode      string
		wantStatus    int
	}{
		{"illegal edge", repository.ErrIllegalTransition, appErrors.ErrIllegalTransition.Code, http.StatusConflict},
		{"last seat taken", repository.ErrCapacityExceeded, appErrors.ErrCapacityExceeded.Code, http.StatusConflict},
		{"not found", sql.ErrNoRows, appErrors.ErrNotFound.Code, http.StatusNotFound},
		{"deadlock", fmt.Errorf("begin transition transaction: %w", &pq.Error{Code: "40P01"}), appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, notifier, _ := newApplicationFixture()
			repo.transitionErr = tc.transitionErr

			_, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
				Status: models.ApplicationStatusConfirmed,
			}, nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
			assert.Equal(t, tc.wantStatus, appErrors.FromError(err).Status)
			assert.Empty(t, notifier.sent)
		})
	}
}

func TestApplicationServiceTransitionUnknownStatus(t *testing.T) {
	svc, _, _, _ := newApplicationFixture()

	_, err := svc.Transition(context.Background(), "app-1", TransitionStatusRequest{
		Status: models.ApplicationStatus("CANCELLED"),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceGet(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture()
	repo.statusLog = []models.StatusLogEntry{
		{ID: "log-1", ApplicationID: "app-1", FromStatus: models.ApplicationStatusNew, ToStatus: models.ApplicationStatusContacted},
	}

	history, err := svc.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", history.Application.ID)
	require.Len(t, history.StatusLog, 1)

	_, err = svc.Get(context.Background(), "app-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceListRejectsUnknownStatusFilter(t *testing.T) {
	svc, _, _, _ := newApplicationFixture()

	_, _, err := svc.List(context.Background(), models.ApplicationFilter{Status: "PENDING"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceListPagination(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture()
	repo.listResp = []models.ApplicationDetail{{Application: models.Application{ID: "app-1"}}}
	repo.listTotal = 41

	applications, pagination, err := svc.List(context.Background(), models.ApplicationFilter{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, applications, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 41, pagination.TotalCount)
}
