package watcher

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Handler provides the transaction check endpoint.
type Handler struct {
	tracker *Tracker
}

// NewHandler creates a new tracker handler.
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// RegisterRoutes sets up tracker routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions/check", h.Check)
}

// CheckRequest names the transaction to look up. With Wait set the request
// polls until the transaction appears or the request times out.
type CheckRequest struct {
	TxHash string `json:"txHash" binding:"required"`
	Wait   bool   `json:"wait"`
}

// Check handles POST /v1/transactions/check
func (h *Handler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "txHash is required"})
		return
	}
	hash := normalizeHash(req.TxHash)
	if !validation.IsValidTxHash(hash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "txHash must be a 32-byte hex hash",
		})
		return
	}

	var res CheckResult
	if req.Wait {
		res = h.tracker.Wait(c.Request.Context(), hash)
	} else {
		res = h.tracker.Check(c.Request.Context(), hash)
	}

	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case res.Error == MsgNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": res.Error, "result": res})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "node_error", "message": res.Error, "result": res})
	}
}
