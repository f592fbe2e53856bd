package receipts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/pagination"
	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Handler provides HTTP endpoints for journal reads.
type Handler struct {
	journal *Journal
}

// NewHandler creates a new receipt handler.
func NewHandler(journal *Journal) *Handler {
	return &Handler{journal: journal}
}

// RegisterRoutes sets up read-only receipt routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/receipts", h.ListByCaller)
	r.GET("/receipts/:id", h.GetEntry)
	r.GET("/receipts/:id/verify", h.VerifyEntry)
	r.GET("/escrows/:id/receipts", h.ListByEscrow)
}

// ListByCaller handles GET /v1/receipts?caller=...
// Without the query parameter the X-Caller-Address header is used.
func (h *Handler) ListByCaller(c *gin.Context) {
	caller := c.Query("caller")
	if caller == "" {
		caller = validation.Caller(c)
	}
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "caller_required",
			"message": "caller query parameter or " + validation.CallerHeader + " header is required",
		})
		return
	}
	if !validation.IsValidAddress(caller) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "caller must be a valid SS58 address",
		})
		return
	}

	limit := DefaultListLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.journal.ListByCaller(c.Request.Context(), caller, limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_cursor",
				"message": "cursor is malformed",
			})
			return
		}
		internalError(c, err)
		return
	}

	resp := gin.H{
		"receipts": page.Entries,
		"count":    len(page.Entries),
		"has_more": page.HasMore,
	}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// GetEntry handles GET /v1/receipts/:id
func (h *Handler) GetEntry(c *gin.Context) {
	e, err := h.journal.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			notFound(c)
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": e})
}

// VerifyEntry handles GET /v1/receipts/:id/verify
func (h *Handler) VerifyEntry(c *gin.Context) {
	resp, err := h.journal.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			notFound(c)
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verification": resp})
}

// ListByEscrow handles GET /v1/escrows/:id/receipts
func (h *Handler) ListByEscrow(c *gin.Context) {
	entries, err := h.journal.ListByEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"receipts": entries,
		"count":    len(entries),
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"message": "Receipt not found",
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": err.Error(),
	})
}
