package booking

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/internal/gateway"
	"github.com/ledgerwise/coaching-backend/internal/meeting"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
	"github.com/ledgerwise/coaching-backend/pkg/response"
)

// CreateSlotRequest is the body for POST /slots.
type CreateSlotRequest struct {
	CoachID   string  `json:"coach_id" binding:"omitempty,uuid"` // ADMIN only; coaches create their own
	StartTime string  `json:"start_time" binding:"required"`
	EndTime   *string `json:"end_time"`
}

// CancelRequest is the body for POST /bookings/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Handler handles slot and booking HTTP endpoints.
type Handler struct {
	tr     *Transactor
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewHandler creates a booking handler.
func NewHandler(tr *Transactor, gw *gateway.Gateway, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tr: tr, gw: gw, logger: logger}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/slots", h.CreateSlot)
	rg.GET("/slots/:id", h.GetSlot)
	rg.POST("/slots/:id/block", h.BlockSlot)
	rg.DELETE("/slots/:id", h.DeleteSlot)
	rg.POST("/slots/:id/book", h.Book)
	rg.GET("/coaches/:id/slots", h.ListSlots)
	rg.GET("/bookings", h.ListBookings)
	rg.GET("/bookings/:id", h.GetBooking)
	rg.POST("/bookings/:id/cancel", h.Cancel)
	rg.POST("/bookings/:id/complete", h.Complete)
}

// CreateSlot handles POST /slots (coach or admin).
func (h *Handler) CreateSlot(c *gin.Context) {
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tc, ok := tenant.FromContext(c.Request.Context())
	if !ok {
		h.fail(c, tenant.ErrNoContext)
		return
	}
	coachID := tc.ActorID()
	if req.CoachID != "" {
		coachID = uuid.MustParse(req.CoachID)
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		response.BadRequest(c, "invalid start_time")
		return
	}
	var end time.Time
	if req.EndTime != nil {
		if end, err = time.Parse(time.RFC3339, *req.EndTime); err != nil {
			response.BadRequest(c, "invalid end_time")
			return
		}
	}
	slot, err := h.tr.CreateSlot(c.Request.Context(), coachID, start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, slot)
}

// GetSlot handles GET /slots/:id.
func (h *Handler) GetSlot(c *gin.Context) {
	id, ok := pathID(c, "invalid slot id")
	if !ok {
		return
	}
	slot, err := h.tr.GetSlot(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, slot)
}

// ListSlots handles GET /coaches/:id/slots?from=&to=.
func (h *Handler) ListSlots(c *gin.Context) {
	coachID, ok := pathID(c, "invalid coach id")
	if !ok {
		return
	}
	var from, to time.Time
	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			response.BadRequest(c, "invalid from")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			response.BadRequest(c, "invalid to")
			return
		}
	}
	list, err := h.tr.ListSlots(c.Request.Context(), coachID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// BlockSlot handles POST /slots/:id/block.
func (h *Handler) BlockSlot(c *gin.Context) {
	id, ok := pathID(c, "invalid slot id")
	if !ok {
		return
	}
	slot, err := h.tr.BlockSlot(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, slot)
}

// DeleteSlot handles DELETE /slots/:id.
func (h *Handler) DeleteSlot(c *gin.Context) {
	id, ok := pathID(c, "invalid slot id")
	if !ok {
		return
	}
	if err := h.tr.DeleteSlot(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Book handles POST /slots/:id/book for the calling employee.
func (h *Handler) Book(c *gin.Context) {
	id, ok := pathID(c, "invalid slot id")
	if !ok {
		return
	}
	tc, ok := tenant.FromContext(c.Request.Context())
	if !ok {
		h.fail(c, tenant.ErrNoContext)
		return
	}
	res, err := h.tr.BookSlot(c.Request.Context(), id, tc.ActorID())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

// Cancel handles POST /bookings/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "invalid booking id")
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	tc, ok := tenant.FromContext(c.Request.Context())
	if !ok {
		h.fail(c, tenant.ErrNoContext)
		return
	}
	res, err := h.tr.CancelBooking(c.Request.Context(), id, tc.ActorID(), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// Complete handles POST /bookings/:id/complete (coach or admin).
func (h *Handler) Complete(c *gin.Context) {
	id, ok := pathID(c, "invalid booking id")
	if !ok {
		return
	}
	b, err := h.tr.CompleteBooking(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, b)
}

// ListBookings handles GET /bookings?status=&limit=. Visibility follows the caller's role.
func (h *Handler) ListBookings(c *gin.Context) {
	f := gateway.BookingFilter{Status: models.BookingStatus(c.Query("status"))}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	if s := c.Query("organization_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid organization_id")
			return
		}
		f.OrganizationID = &id
	}
	list, err := h.gw.Bookings().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetBooking handles GET /bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c, "invalid booking id")
	if !ok {
		return
	}
	b, err := h.gw.Bookings().Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, b)
}

func pathID(c *gin.Context, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, msg)
		return uuid.Nil, false
	}
	return id, true
}

// fail maps transactor and gateway errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tenant.ErrNoContext):
		h.logger.Error("booking route without tenant context", zap.String("path", c.FullPath()))
		response.Internal(c, "internal error")
	case errors.Is(err, ErrTransient):
		response.RetryLater(c, err.Error(), time.Second)
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrForbidden), gateway.IsSecurityViolation(err):
		response.Forbidden(c, "not permitted")
	case errors.Is(err, ErrSlotNotFound):
		response.NotFound(c, "slot not found")
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, gateway.ErrNotFound):
		response.NotFound(c, "booking not found")
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, gateway.ErrUnknownColumn):
		response.BadRequest(c, err.Error())
	case errors.Is(err, meeting.ErrUnavailable):
		response.ServiceUnavailable(c, "meeting room unavailable")
	default:
		h.logger.Error("booking request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
