// Package validation provides input validation helpers and middleware for
// the escrow API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
	"github.com/samuelarogbonlo/dot-escrow/internal/usdc"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// CallerHeader carries the account a request acts for.
const CallerHeader = "X-Caller-Address"

// CallerKey is the gin context key holding the validated caller address.
const CallerKey = "callerAddr"

// txHashRegex validates 32-byte hex hashes
var txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is an SS58 address or 0x account key
func IsValidAddress(addr string) bool {
	return ss58.Valid(strings.TrimSpace(addr))
}

// IsValidTxHash checks if a string is a 0x-prefixed 32-byte hash
func IsValidTxHash(s string) bool {
	return txHashRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks if a field is a valid account address
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid SS58 address"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidAmount checks if a value is a positive stablecoin amount
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		n, err := usdc.Parse(value)
		if err != nil {
			return &ValidationError{Field: field, Message: "invalid amount format"}
		}
		if n.IsZero() {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		return nil
	}
}

// CallerMiddleware reads the caller address from CallerHeader. A malformed
// address is rejected; a missing one is left for handlers to decide, since
// reads may run without a caller.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := strings.TrimSpace(c.GetHeader(CallerHeader))
		if addr != "" {
			if !IsValidAddress(addr) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_caller",
					"message": CallerHeader + " must be a valid SS58 address",
				})
				return
			}
			c.Set(CallerKey, addr)
		}
		c.Next()
	}
}

// RequireCaller aborts requests without a caller address.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CallerKey) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "caller_required",
				"message": CallerHeader + " header is required",
			})
			return
		}
		c.Next()
	}
}

// Caller returns the caller address set by CallerMiddleware.
func Caller(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// AddressParamMiddleware validates the :address URL parameter on routes that use it.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid SS58 address",
			})
			return
		}
		c.Next()
	}
}
