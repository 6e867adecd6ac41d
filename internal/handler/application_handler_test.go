package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/booking-api/internal/middleware"
	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/internal/repository"
	"github.com/tourdesk/booking-api/internal/service"
	"github.com/tourdesk/booking-api/pkg/response"
)

type stubApplicationRepo struct {
	createErr        error
	transitionResult *repository.TransitionResult
	transitionErr    error
	detail           *models.ApplicationDetail
	listResp         []models.ApplicationDetail
	lastFilter       models.ApplicationFilter
}

func (s *stubApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if s.createErr != nil {
		return s.createErr
	}
	app.ID = "app-1"
	return nil
}

func (s *stubApplicationRepo) Transition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionResult, error) {
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	return s.transitionResult, nil
}

func (s *stubApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	s.lastFilter = filter
	return s.listResp, len(s.listResp), nil
}

func (s *stubApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if s.detail != nil && s.detail.ID == id {
		return s.detail, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubApplicationRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ApplicationDetail, error) {
	return s.listResp, nil
}

func (s *stubApplicationRepo) StatusLog(ctx context.Context, applicationID string) ([]models.StatusLogEntry, error) {
	return nil, nil
}

type stubTourReader struct{ tour *models.Tour }

func (s *stubTourReader) FindBookableByID(ctx context.Context, id string) (*models.Tour, error) {
	if s.tour != nil && s.tour.ID == id {
		return s.tour, nil
	}
	return nil, sql.ErrNoRows
}

type stubStudentReader struct{}

func (s *stubStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func newApplicationHandlerFixture(repo *stubApplicationRepo) *ApplicationHandler {
	tours := &stubTourReader{tour: &models.Tour{
		ID: "tour-1", Title: "Harbour Walk", Capacity: 30, Published: true,
		TourDate: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
	}}
	apps := service.NewApplicationService(repo, tours, &stubStudentReader{}, nil, nil, nil, nil, nil)
	exports := service.NewExportService(repo, nil)
	return NewApplicationHandler(apps, exports)
}

func TestApplicationHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{detail: &models.ApplicationDetail{
		Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusNew},
		TourTitle:   "Harbour Walk",
	}}
	handler := newApplicationHandlerFixture(repo)

	body := `{"tour_id":"tour-1","applicant_name":"Sari Dewi","applicant_contact":"sari@example.com"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Nil(t, envelope.Error)
}

func TestApplicationHandlerSubmitInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newApplicationHandlerFixture(&stubApplicationRepo{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(`{"tour_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerSubmitCapacityConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{createErr: repository.ErrCapacityExceeded}
	handler := newApplicationHandlerFixture(repo)

	body := `{"tour_id":"tour-1","applicant_name":"Sari Dewi","applicant_contact":"sari@example.com"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CAPACITY_EXCEEDED", envelope.Error.Code)
}

func TestApplicationHandlerUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{
		transitionResult: &repository.TransitionResult{
			Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusConfirmed},
			FromStatus:  models.ApplicationStatusContacted,
			Changed:     true,
		},
		detail: &models.ApplicationDetail{
			Application: models.Application{ID: "app-1", TourID: "tour-1", Status: models.ApplicationStatusConfirmed},
		},
	}
	handler := newApplicationHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/applications/app-1/status", bytes.NewBufferString(`{"status":"confirmed"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "manager-1", Role: models.RoleManager})

	handler.UpdateStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestApplicationHandlerUpdateStatusIllegal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{transitionErr: repository.ErrIllegalTransition}
	handler := newApplicationHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/applications/app-1/status", bytes.NewBufferString(`{"status":"CONFIRMED"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.UpdateStatus(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ILLEGAL_TRANSITION", envelope.Error.Code)
}

func TestApplicationHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{}
	handler := newApplicationHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications?status=confirmed&tourId=tour-1&dateFrom=2026-09-01&page=2&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApplicationStatusConfirmed, repo.lastFilter.Status)
	assert.Equal(t, "tour-1", repo.lastFilter.TourID)
	require.NotNil(t, repo.lastFilter.DateFrom)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 10, repo.lastFilter.PageSize)
}

func TestApplicationHandlerExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubApplicationRepo{listResp: []models.ApplicationDetail{
		{Application: models.Application{ID: "app-1", ApplicantName: "Sari Dewi", Status: models.ApplicationStatusConfirmed}},
	}}
	handler := newApplicationHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications/export?tourId=tour-1&format=csv", nil)
	c.Request = req

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "applications-tour-1")
	assert.Contains(t, w.Body.String(), "Sari Dewi")
}
