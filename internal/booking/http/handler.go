package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/parking-booking-backend/internal/auth"
	"github.com/nekogravitycat/parking-booking-backend/internal/booking"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/response"
)

type Handler struct {
	service        booking.Service
	parkingService parking.Service
}

func NewHandler(service booking.Service, parkingService parking.Service) *Handler {
	return &Handler{service: service, parkingService: parkingService}
}

// isParkingOwner reports whether userID owns the booking's parking.
func (h *Handler) isParkingOwner(c *gin.Context, parkingID, userID string) bool {
	p, err := h.parkingService.GetByID(c.Request.Context(), parkingID)
	if err != nil {
		return false
	}
	return p.OwnerID == userID
}

func (h *Handler) List(c *gin.Context) {
	var req ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	userID := auth.GetUserID(c)

	// A caller only ever lists their own bookings, except a parking owner
	// listing the bookings of one of their parkings.
	filter := booking.Filter{
		UserID:    userID,
		ParkingID: req.ParkingID,
		Status:    req.Status,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.ParkingID != "" && h.isParkingOwner(c, req.ParkingID, userID) {
		filter.UserID = req.UserID // may be empty to show all
	}

	bookings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
		if b.UserID != userID {
			items[i].AccessCode = ""
		}
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, filter.Page, filter.PageSize, total))
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.Request(c.Request.Context(), booking.RequestInput{
		UserID:    auth.GetUserID(c),
		ParkingID: body.ParkingID,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		Notes:     body.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBookingResponse(b))
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	userID := auth.GetUserID(c)
	if b.UserID != userID && !h.isParkingOwner(c, b.ParkingID, userID) {
		response.Error(c, booking.ErrPermissionDenied)
		return
	}

	resp := NewBookingResponse(b)
	if b.UserID != userID {
		// The access code belongs to the driver.
		resp.AccessCode = ""
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) Reject(c *gin.Context) {
	h.transition(c, h.service.Reject)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) CheckIn(c *gin.Context) {
	h.transition(c, h.service.CheckIn)
}

func (h *Handler) CheckOut(c *gin.Context) {
	h.transition(c, h.service.CheckOut)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, id, actorID string) (*booking.Booking, error)) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	b, err := op(c.Request.Context(), uri.ID, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}
