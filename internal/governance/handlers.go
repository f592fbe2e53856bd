package governance

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Handler provides HTTP endpoints for governance.
type Handler struct {
	client *Client
}

// NewHandler creates a new governance handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes sets up read-only governance routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/governance/proposals", h.ListProposals)
	r.GET("/governance/signers", h.GetSigners)
	r.GET("/governance/signers/:address", validation.AddressParamMiddleware(), h.IsSigner)
	r.GET("/governance/threshold", h.GetThreshold)
}

// RegisterProtectedRoutes sets up routes that sign transactions as the caller.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/governance/proposals", h.SubmitProposal)
	r.POST("/governance/proposals/:id/approve", h.ApproveProposal)
	r.POST("/governance/proposals/:id/execute", h.ExecuteProposal)
}

// ListProposals handles GET /v1/governance/proposals
func (h *Handler) ListProposals(c *gin.Context) {
	ctx := c.Request.Context()
	caller := validation.Caller(c)

	res := h.client.ListProposals(ctx, caller)
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": "query_failed", "message": res.Error})
		return
	}
	th := h.client.GetSignatureThreshold(ctx, caller)

	views := SummarizeAll(res.Proposals, th.Threshold)
	if status := c.Query("status"); status != "" {
		filtered := make([]ProposalView, 0, len(views))
		for _, v := range views {
			if v.Status == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"proposals": views,
		"count":     len(views),
		"threshold": th.Threshold,
	})
}

// GetSigners handles GET /v1/governance/signers
func (h *Handler) GetSigners(c *gin.Context) {
	res := h.client.GetAdminSigners(c.Request.Context(), validation.Caller(c))
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": "query_failed", "message": res.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signers": res.Signers, "count": len(res.Signers)})
}

// IsSigner handles GET /v1/governance/signers/:address
func (h *Handler) IsSigner(c *gin.Context) {
	addr := c.Param("address")
	res := h.client.IsAdminSigner(c.Request.Context(), validation.Caller(c), addr)
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": "query_failed", "message": res.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "isSigner": res.IsSigner})
}

// GetThreshold handles GET /v1/governance/threshold
func (h *Handler) GetThreshold(c *gin.Context) {
	res := h.client.GetSignatureThreshold(c.Request.Context(), validation.Caller(c))
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": "query_failed", "message": res.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": res.Threshold})
}

// SubmitProposal handles POST /v1/governance/proposals
func (h *Handler) SubmitProposal(c *gin.Context) {
	var action Action
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	kind, err := ParseActionKind(string(action.Kind))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	action.Kind = kind
	if _, err := action.Arg(); err != nil {
		code := "validation_error"
		if strings.HasPrefix(err.Error(), MsgInvalidAddressPrefix) {
			code = "invalid_address"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": err.Error()})
		return
	}
	respond(c, h.client.SubmitProposal(c.Request.Context(), validation.Caller(c), action))
}

// ApproveProposal handles POST /v1/governance/proposals/:id/approve
func (h *Handler) ApproveProposal(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	respond(c, h.client.ApproveProposal(c.Request.Context(), validation.Caller(c), id))
}

// ExecuteProposal handles POST /v1/governance/proposals/:id/execute
func (h *Handler) ExecuteProposal(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	respond(c, h.client.ExecuteProposal(c.Request.Context(), validation.Caller(c), id))
}

func proposalID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_proposal_id",
			"message": "proposal id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func respond(c *gin.Context, r chain.Receipt) {
	if r.Success {
		c.JSON(http.StatusOK, gin.H{"receipt": r})
		return
	}
	status, code := http.StatusBadGateway, "submission_failed"
	switch pipeline.Classify(r.Error) {
	case pipeline.OutcomeUnavailable:
		status, code = http.StatusServiceUnavailable, "signer_unavailable"
	case pipeline.OutcomeDispatchError:
		status, code = http.StatusUnprocessableEntity, "dispatch_error"
	case pipeline.OutcomeCanceled:
		status, code = http.StatusGatewayTimeout, "timeout"
	}
	c.JSON(status, gin.H{"error": code, "message": r.Error, "receipt": r})
}
