package receipts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samuelarogbonlo/dot-escrow/internal/pagination"
)

// PostgresStore persists journal entries in PostgreSQL. The schema lives in
// migrations/001_receipts.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed journal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, message, caller, state, outcome, success,
		       tx_hash, block_hash, escrow_id, error, duration_ms, signature, created_at`

func (p *PostgresStore) Record(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO receipts (
			id, message, caller, state, outcome, success,
			tx_hash, block_hash, escrow_id, error, duration_ms, signature, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)`,
		e.ID, e.Message, e.Caller, e.State, e.Outcome, e.Success,
		nullString(e.TransactionHash), nullString(e.BlockHash), nullString(e.EscrowID),
		nullString(e.Error), e.DurationMs, nullString(e.Signature), e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM receipts WHERE id = $1`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (p *PostgresStore) ListByCaller(ctx context.Context, caller string, limit int, cursor *pagination.Cursor) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cursor == nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM receipts
			WHERE caller = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, caller, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM receipts
			WHERE caller = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, caller, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (p *PostgresStore) ListByEscrow(ctx context.Context, escrowID string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM receipts
		WHERE escrow_id = $1
		ORDER BY created_at DESC, id DESC`, escrowID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

// --- scanners ---

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	e := &Entry{}
	var txHash, blockHash, escrowID, errText, signature sql.NullString

	err := sc.Scan(
		&e.ID, &e.Message, &e.Caller, &e.State, &e.Outcome, &e.Success,
		&txHash, &blockHash, &escrowID, &errText, &e.DurationMs, &signature, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TransactionHash = txHash.String
	e.BlockHash = blockHash.String
	e.EscrowID = escrowID.String
	e.Error = errText.String
	e.Signature = signature.String
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
