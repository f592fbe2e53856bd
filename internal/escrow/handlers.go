package escrow

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	client *Client
}

// NewHandler creates a new escrow handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes sets up read-only escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/escrows", h.ListEscrows)
	r.GET("/escrows/:id", h.GetEscrow)
}

// RegisterProtectedRoutes sets up routes that sign transactions as the caller.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/escrows", h.CreateEscrow)
	r.POST("/escrows/:id/status", h.UpdateStatus)
	r.POST("/escrows/:id/notify", h.NotifyCounterparty)
	r.POST("/escrows/:id/milestones/:milestoneId/release", h.ReleaseMilestone)
	r.POST("/escrows/:id/milestones/:milestoneId/dispute", h.DisputeMilestone)
	r.POST("/escrows/:id/milestones/:milestoneId/status", h.UpdateMilestoneStatus)
}

// CreateEscrow handles POST /v1/escrows
func (h *Handler) CreateEscrow(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	checks := []func() *validation.ValidationError{
		validation.ValidAddress("counterpartyAddress", req.CounterpartyAddress),
		validation.MaxLength("title", req.Title, validation.MaxStringLength),
		validation.MaxLength("description", req.Description, validation.MaxStringLength),
		validation.ValidAmount("totalAmount", req.TotalAmount),
	}
	for _, m := range req.Milestones {
		checks = append(checks, validation.ValidAmount("milestones.amount", m.Amount))
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if req.Status != "" {
		st, err := ParseStatus(string(req.Status))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
			return
		}
		req.Status = st
	}
	for i := range req.Milestones {
		if req.Milestones[i].Status == "" {
			continue
		}
		st, err := ParseMilestoneStatus(string(req.Milestones[i].Status))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
			return
		}
		req.Milestones[i].Status = st
	}
	if err := ValidateTotals(req.TotalAmount, req.Milestones); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "amount_mismatch",
			"message": err.Error(),
		})
		return
	}

	res := h.client.CreateEscrow(c.Request.Context(), validation.Caller(c), req)
	if !res.Success {
		status, code := receiptError(res.Error)
		c.JSON(status, gin.H{"error": code, "message": res.Error})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"result": res})
}

// GetEscrow handles GET /v1/escrows/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	res := h.client.GetEscrow(c.Request.Context(), validation.Caller(c), c.Param("id"))
	switch {
	case !res.Success && res.Error == "EscrowNotFound", res.Success && res.Escrow == nil:
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": MsgNotFound,
		})
		return
	case !res.Success:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "query_failed",
			"message": res.Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": res.Escrow})
}

// ListEscrows handles GET /v1/escrows
func (h *Handler) ListEscrows(c *gin.Context) {
	res := h.client.ListEscrows(c.Request.Context(), validation.Caller(c))
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "query_failed",
			"message": res.Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"escrows": res.Escrows,
		"count":   len(res.Escrows),
	})
}

// StatusRequest carries a new escrow or milestone status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles POST /v1/escrows/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "status is required"})
		return
	}
	st, err := ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	respond(c, h.client.UpdateEscrowStatus(c.Request.Context(), validation.Caller(c), c.Param("id"), st))
}

// UpdateMilestoneStatus handles POST /v1/escrows/:id/milestones/:milestoneId/status
func (h *Handler) UpdateMilestoneStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "status is required"})
		return
	}
	st, err := ParseMilestoneStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	respond(c, h.client.UpdateEscrowMilestoneStatus(c.Request.Context(), validation.Caller(c),
		c.Param("id"), c.Param("milestoneId"), st))
}

// ReleaseMilestone handles POST /v1/escrows/:id/milestones/:milestoneId/release
func (h *Handler) ReleaseMilestone(c *gin.Context) {
	respond(c, h.client.ReleaseMilestone(c.Request.Context(), validation.Caller(c),
		c.Param("id"), c.Param("milestoneId")))
}

// DisputeRequest contains the parameters for disputing a milestone.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// DisputeMilestone handles POST /v1/escrows/:id/milestones/:milestoneId/dispute
func (h *Handler) DisputeMilestone(c *gin.Context) {
	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	reason := validation.SanitizeString(req.Reason, validation.MaxStringLength)
	respond(c, h.client.DisputeMilestone(c.Request.Context(), validation.Caller(c),
		c.Param("id"), c.Param("milestoneId"), reason))
}

// NotifyRequest contains the parameters for notifying a counterparty.
type NotifyRequest struct {
	NotificationType string `json:"notificationType" binding:"required"`
	RecipientAddress string `json:"recipientAddress" binding:"required"`
	Message          string `json:"message"`
}

// NotifyCounterparty handles POST /v1/escrows/:id/notify
func (h *Handler) NotifyCounterparty(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	respond(c, h.client.NotifyCounterparty(c.Request.Context(), validation.Caller(c), c.Param("id"),
		req.NotificationType, req.RecipientAddress,
		validation.SanitizeString(req.Message, validation.MaxStringLength)))
}

func respond(c *gin.Context, r chain.Receipt) {
	if r.Success {
		c.JSON(http.StatusOK, gin.H{"receipt": r})
		return
	}
	status, code := receiptError(r.Error)
	c.JSON(status, gin.H{"error": code, "message": r.Error, "receipt": r})
}

// receiptError maps a failed receipt to an HTTP status and error code.
func receiptError(msg string) (int, string) {
	switch {
	case msg == MsgDisputeReasonRequired:
		return http.StatusBadRequest, "validation_error"
	case strings.HasPrefix(msg, MsgInvalidAddressPrefix):
		return http.StatusBadRequest, "invalid_address"
	}
	switch pipeline.Classify(msg) {
	case pipeline.OutcomeUnavailable:
		return http.StatusServiceUnavailable, "signer_unavailable"
	case pipeline.OutcomeDispatchError:
		return http.StatusUnprocessableEntity, "dispatch_error"
	case pipeline.OutcomeCanceled:
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusBadGateway, "submission_failed"
}
