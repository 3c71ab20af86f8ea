// Package finance serves the personal-finance records of employees. All reads and
// writes go through the gateway, so HR and coaches are refused before any query runs.
package finance

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

// CreateTransactionRequest is the body for POST /finance/transactions.
type CreateTransactionRequest struct {
	AccountID   string  `json:"account_id" binding:"omitempty,uuid"`
	AmountCents int64   `json:"amount_cents" binding:"required"`
	Currency    string  `json:"currency" binding:"omitempty,len=3"`
	Category    string  `json:"category" binding:"max=64"`
	Description string  `json:"description" binding:"max=500"`
	OccurredAt  *string `json:"occurred_at"`
}

// Handler handles finance HTTP endpoints.
type Handler struct {
	gw     *gateway.Gateway
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a finance handler.
func NewHandler(gw *gateway.Gateway, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gw: gw, logger: logger, now: time.Now}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/finance")
	g.GET("/transactions", h.ListTransactions)
	g.POST("/transactions", h.CreateTransaction)
	g.GET("/summaries", h.ListSummaries)
	g.GET("/accounts", h.ListAccounts)
}

// ListTransactions handles GET /finance/transactions?user_id=&category=&limit=.
func (h *Handler) ListTransactions(c *gin.Context) {
	var f gateway.TransactionFilter
	var ok bool
	if f.UserID, ok = queryID(c, "user_id"); !ok {
		return
	}
	if f.OrganizationID, ok = queryID(c, "organization_id"); !ok {
		return
	}
	if f.AccountID, ok = queryID(c, "account_id"); !ok {
		return
	}
	f.Category = c.Query("category")
	if f.Limit, ok = queryLimit(c); !ok {
		return
	}
	list, err := h.gw.Transactions().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// CreateTransaction handles POST /finance/transactions for the calling employee.
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t := models.FinancialTransaction{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		OccurredAt:  h.now().UTC(),
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}
	if req.AccountID != "" {
		id := uuid.MustParse(req.AccountID)
		t.AccountID = &id
	}
	if req.OccurredAt != nil {
		at, err := time.Parse(time.RFC3339, *req.OccurredAt)
		if err != nil {
			response.BadRequest(c, "invalid occurred_at")
			return
		}
		t.OccurredAt = at
	}
	created, err := h.gw.Transactions().Create(c.Request.Context(), t)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, created)
}

// ListSummaries handles GET /finance/summaries?month=YYYY-MM.
func (h *Handler) ListSummaries(c *gin.Context) {
	var f gateway.SummaryFilter
	var ok bool
	if f.UserID, ok = queryID(c, "user_id"); !ok {
		return
	}
	if m := c.Query("month"); m != "" {
		month, err := time.Parse("2006-01", m)
		if err != nil {
			response.BadRequest(c, "invalid month")
			return
		}
		f.Month = &month
	}
	if f.Limit, ok = queryLimit(c); !ok {
		return
	}
	list, err := h.gw.Summaries().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// ListAccounts handles GET /finance/accounts.
func (h *Handler) ListAccounts(c *gin.Context) {
	var f gateway.AccountFilter
	var ok bool
	if f.UserID, ok = queryID(c, "user_id"); !ok {
		return
	}
	list, err := h.gw.Accounts().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

func queryID(c *gin.Context, key string) (*uuid.UUID, bool) {
	s := c.Query(key)
	if s == "" {
		return nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		response.BadRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}

func queryLimit(c *gin.Context) (int, bool) {
	s := c.Query("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 500 {
		response.BadRequest(c, "invalid limit")
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrNoTenantContext):
		response.Internal(c, "internal error")
	case gateway.IsSecurityViolation(err):
		response.Forbidden(c, "not permitted")
	case errors.Is(err, gateway.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, gateway.ErrUnknownColumn), errors.Is(err, gateway.ErrImmutableColumn):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("finance request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
