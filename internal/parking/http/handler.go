package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/parking-booking-backend/internal/auth"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

type Handler struct {
	service parking.Service
}

func NewHandler(service parking.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(c *gin.Context) {
	var req ListParkingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	filter := parking.Filter{
		OwnerID:    req.OwnerID,
		ActiveOnly: true,
		MaxPrice:   req.MaxPrice,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}

	parkings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]ParkingResponse, len(parkings))
	for i, p := range parkings {
		items[i] = NewParkingResponse(p)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	p, err := h.service.GetByID(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewParkingResponse(p))
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateParkingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	req := parking.CreateRequest{
		OwnerID:           auth.GetUserID(c),
		VerificationLevel: auth.GetVerificationLevel(c),
		Title:             body.Title,
		Description:       body.Description,
		Address:           body.Address,
		Latitude:          body.Latitude,
		Longitude:         body.Longitude,
		BasePrice:         body.BasePrice,
		Currency:          body.Currency,
		AccessMethod:      parking.AccessMethod(body.AccessMethod),
		HasEVCharging:     body.HasEVCharging,
		Weekly:            toWeekly(body.OpenHours),
		Exceptions:        toExceptions(body.Exceptions),
		PriceRules:        toPriceRules(body.PriceRules),
	}

	p, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewParkingResponse(p))
}

func (h *Handler) Update(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var body UpdateParkingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	req := parking.UpdateRequest{
		Title:         body.Title,
		Description:   body.Description,
		Address:       body.Address,
		BasePrice:     body.BasePrice,
		IsActive:      body.IsActive,
		HasEVCharging: body.HasEVCharging,
	}
	if body.OpenHours != nil {
		req.Weekly = toWeekly(body.OpenHours)
	}
	if body.Exceptions != nil {
		req.Exceptions = toExceptions(body.Exceptions)
	}
	if body.PriceRules != nil {
		req.PriceRules = toPriceRules(body.PriceRules)
	}

	p, err := h.service.Update(c.Request.Context(), uri.ID, auth.GetUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewParkingResponse(p))
}

func (h *Handler) Availability(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var req AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	from, _ := time.Parse(schedule.DateLayout, req.From)
	to, _ := time.Parse(schedule.DateLayout, req.To)

	openings, err := h.service.OpenIntervals(c.Request.Context(), uri.ID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"parking_id": uri.ID, "days": openings})
}

func (h *Handler) Quote(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var body QuoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !body.StartTime.Before(body.EndTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be before end_time"})
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), uri.ID, pricing.Interval{
		Start: body.StartTime,
		End:   body.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	breakdown := quote.AppliedRules
	if breakdown == nil {
		breakdown = make([]pricing.Applied, 0)
	}
	c.JSON(http.StatusOK, QuoteResponse{
		BasePrice:    quote.BasePrice,
		TotalPrice:   quote.TotalPrice,
		Currency:     quote.Currency,
		AppliedRules: breakdown,
	})
}
