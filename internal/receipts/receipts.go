// Package receipts keeps a client-side journal of contract call outcomes.
//
// Every submission through the pipeline resolves to exactly one receipt.
// The journal stores those receipts so callers can look up what happened to
// a call after the fact. It is an audit trail, not contract state: the
// contract remains the source of truth for escrows and proposals.
package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/pagination"
)

var (
	ErrEntryNotFound   = errors.New("receipts: not found")
	ErrSigningDisabled = errors.New("receipts: signing disabled (no HMAC secret configured)")
)

// Entry is one journaled call outcome.
type Entry struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	Caller          string    `json:"caller"`
	State           string    `json:"state"`
	Outcome         string    `json:"outcome"`
	Success         bool      `json:"success"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	BlockHash       string    `json:"blockHash,omitempty"`
	EscrowID        string    `json:"escrowId,omitempty"`
	Error           string    `json:"error,omitempty"`
	DurationMs      int64     `json:"durationMs"`
	Signature       string    `json:"signature,omitempty"` // HMAC-SHA256 over the canonical payload
	CreatedAt       time.Time `json:"createdAt"`
}

// VerifyResponse is the result of checking an entry's signature.
type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	EntryID string `json:"entryId"`
	Error   string `json:"error,omitempty"`
}

// Store persists journal entries.
type Store interface {
	Record(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	// ListByCaller returns newest first, starting after cursor when set.
	// Implementations return up to limit entries.
	ListByCaller(ctx context.Context, caller string, limit int, cursor *pagination.Cursor) ([]*Entry, error)
	ListByEscrow(ctx context.Context, escrowID string) ([]*Entry, error)
}

// entryPayload is the canonical struct signed by HMAC.
// Field order must be deterministic (JSON marshalling of struct is by field order).
type entryPayload struct {
	BlockHash       string `json:"blockHash"`
	Caller          string `json:"caller"`
	EscrowID        string `json:"escrowId"`
	Error           string `json:"error"`
	ID              string `json:"id"`
	Message         string `json:"message"`
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
}

func payloadOf(e *Entry) entryPayload {
	return entryPayload{
		BlockHash:       e.BlockHash,
		Caller:          e.Caller,
		EscrowID:        e.EscrowID,
		Error:           e.Error,
		ID:              e.ID,
		Message:         e.Message,
		Success:         e.Success,
		TransactionHash: e.TransactionHash,
	}
}

// before reports whether a sorts after b in newest-first order.
func before(a, b *Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
