// Package pagination implements keyset cursors over (created_at, id) ordered
// lists, newest first.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last item of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type wireCursor struct {
	T int64  `json:"t"`
	I string `json:"i"`
}

// Encode returns an opaque, URL-safe cursor for the item (createdAt, id).
func Encode(createdAt time.Time, id string) string {
	b, _ := json.Marshal(wireCursor{T: createdAt.UnixNano(), I: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a cursor produced by Encode. Empty input means "first page"
// and yields a nil cursor.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil || w.I == "" {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, w.T).UTC(), ID: w.I}, nil
}

// Admits reports whether an item sorts after the cursor in newest-first
// order. A nil cursor admits everything.
func (c *Cursor) Admits(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if !createdAt.Equal(c.CreatedAt) {
		return createdAt.Before(c.CreatedAt)
	}
	return id < c.ID
}

// Limit clamps a requested page size into [1, max], using def when unset.
func Limit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// ComputePage trims items fetched with limit+1 down to limit and returns the
// cursor for the next page, or "" when there is none.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := key(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
