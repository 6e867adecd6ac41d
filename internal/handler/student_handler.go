package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tourdesk/booking-api/internal/service"
	"github.com/tourdesk/booking-api/pkg/response"
)

// StudentHandler exposes a student's own application and enrollment views.
type StudentHandler struct {
	applications *service.ApplicationService
	enrollments  *service.EnrollmentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(applications *service.ApplicationService, enrollments *service.EnrollmentService) *StudentHandler {
	return &StudentHandler{applications: applications, enrollments: enrollments}
}

// Applications godoc
// @Summary List a student's applications
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/applications [get]
func (h *StudentHandler) Applications(c *gin.Context) {
	applications, err := h.applications.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, nil)
}

// Enrollments godoc
// @Summary List a student's enrollments
// @Description Reconciles past-dated enrollments to COMPLETED before listing.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *StudentHandler) Enrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
