package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tourdesk/booking-api/internal/service"
	"github.com/tourdesk/booking-api/pkg/response"
)

// TourHandler exposes the tour catalog read endpoints.
type TourHandler struct {
	tours *service.TourService
}

// NewTourHandler constructs TourHandler.
func NewTourHandler(tours *service.TourService) *TourHandler {
	return &TourHandler{tours: tours}
}

// List godoc
// @Summary List upcoming published tours
// @Tags Tours
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tours [get]
func (h *TourHandler) List(c *gin.Context) {
	tours, err := h.tours.ListUpcoming(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tours, nil)
}

// Get godoc
// @Summary Get a tour
// @Tags Tours
// @Produce json
// @Param id path string true "Tour ID"
// @Success 200 {object} response.Envelope
// @Router /tours/{id} [get]
func (h *TourHandler) Get(c *gin.Context) {
	tour, err := h.tours.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tour, nil)
}

// Occupancy godoc
// @Summary Get confirmed-seat occupancy for a tour
// @Tags Tours
// @Produce json
// @Param id path string true "Tour ID"
// @Success 200 {object} response.Envelope
// @Router /tours/{id}/occupancy [get]
func (h *TourHandler) Occupancy(c *gin.Context) {
	occupancy, err := h.tours.GetOccupancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil)
}
