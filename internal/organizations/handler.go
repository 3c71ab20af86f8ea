// Package organizations serves the member directory of an organization.
package organizations

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/internal/gateway"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/pkg/response"
)

// Handler handles organization member endpoints.
type Handler struct {
	gw     *gateway.Gateway
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an organizations handler.
func NewHandler(gw *gateway.Gateway, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gw: gw, logger: logger, now: time.Now}
}

// SetActiveRequest is the body for PATCH /organizations/members/:id.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/organizations/members")
	g.GET("", h.ListMembers)
	g.GET("/:id", h.GetMember)
	g.PATCH("/:id", h.SetActive)
}

// ListMembers handles GET /organizations/members?role=&active=.
// HR sees its own organization, employees see themselves, ADMIN sees everyone.
func (h *Handler) ListMembers(c *gin.Context) {
	f := gateway.UserFilter{Role: models.Role(c.Query("role"))}
	if f.Role != "" && !f.Role.Valid() {
		response.BadRequest(c, "invalid role")
		return
	}
	if s := c.Query("active"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			response.BadRequest(c, "invalid active")
			return
		}
		f.Active = &b
	}
	if s := c.Query("organization_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid organization_id")
			return
		}
		f.OrganizationID = &id
	}
	list, err := h.gw.Users().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetMember handles GET /organizations/members/:id.
func (h *Handler) GetMember(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	u, err := h.gw.Users().Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, u)
}

// SetActive handles PATCH /organizations/members/:id (HR or ADMIN).
func (h *Handler) SetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "active required")
		return
	}
	n, err := h.gw.Users().SetActive(c.Request.Context(), id, *req.Active, h.now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}
	if n == 0 {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, gin.H{"id": id, "active": *req.Active})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrNoTenantContext):
		response.Internal(c, "internal error")
	case gateway.IsSecurityViolation(err):
		response.Forbidden(c, "not permitted")
	case errors.Is(err, gateway.ErrNotFound):
		response.NotFound(c, "user not found")
	default:
		h.logger.Error("organization request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
