package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/idgen"
	"github.com/samuelarogbonlo/dot-escrow/internal/pagination"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Journal records pipeline outcomes and serves them back.
type Journal struct {
	store  Store
	signer *Signer
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithSigner signs every recorded entry.
func WithSigner(s *Signer) Option {
	return func(j *Journal) { j.signer = s }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// NewJournal creates a journal over store.
func NewJournal(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record journals one terminal outcome. It satisfies pipeline.Recorder.
func (j *Journal) Record(ctx context.Context, o pipeline.Outcome) error {
	e := &Entry{
		ID:              idgen.WithPrefix("rcpt_"),
		Message:         o.Message,
		Caller:          o.Caller,
		State:           string(o.State),
		Outcome:         o.Label,
		Success:         o.Receipt.Success,
		TransactionHash: o.Receipt.TransactionHash,
		BlockHash:       o.Receipt.BlockHash,
		EscrowID:        o.Receipt.EscrowID,
		Error:           o.Receipt.Error,
		DurationMs:      o.Duration.Milliseconds(),
		CreatedAt:       j.now().UTC(),
	}

	sig, err := j.signer.Sign(payloadOf(e))
	if err != nil {
		return fmt.Errorf("receipts: failed to sign: %w", err)
	}
	e.Signature = sig

	return j.store.Record(ctx, e)
}

// Get returns an entry by ID.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	return j.store.Get(ctx, id)
}

// Page is one page of entries.
type Page struct {
	Entries    []*Entry
	NextCursor string
	HasMore    bool
}

// ListByCaller returns a page of the caller's entries, newest first.
func (j *Journal) ListByCaller(ctx context.Context, caller string, limit int, cursor string) (*Page, error) {
	limit = pagination.Limit(limit, DefaultListLimit, MaxListLimit)
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}

	entries, err := j.store.ListByCaller(ctx, caller, limit+1, c)
	if err != nil {
		return nil, err
	}
	entries, next, more := pagination.ComputePage(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	if entries == nil {
		entries = []*Entry{}
	}
	return &Page{Entries: entries, NextCursor: next, HasMore: more}, nil
}

// ListByEscrow returns every entry that resolved to escrowID, newest first.
func (j *Journal) ListByEscrow(ctx context.Context, escrowID string) ([]*Entry, error) {
	entries, err := j.store.ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}

// Verify checks whether an entry's signature is valid.
func (j *Journal) Verify(ctx context.Context, id string) (*VerifyResponse, error) {
	if j.signer == nil {
		return &VerifyResponse{EntryID: id, Error: ErrSigningDisabled.Error()}, nil
	}

	e, err := j.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &VerifyResponse{EntryID: id, Valid: j.signer.Verify(payloadOf(e), e.Signature)}
	if !resp.Valid {
		resp.Error = "signature verification failed"
	}
	return resp, nil
}

var _ pipeline.Recorder = (*Journal)(nil)
