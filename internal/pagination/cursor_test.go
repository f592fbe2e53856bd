package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)

	c, err := Decode(Encode(ts, "rcpt_abc123"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ts, c.CreatedAt)
	assert.Equal(t, "rcpt_abc123", c.ID)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{
		"not-base64!!!",
		base64.RawURLEncoding.EncodeToString([]byte("nojson")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":1}`)),
	} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
	}
}

func TestCursor_Admits(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Cursor{CreatedAt: ts, ID: "m"}

	assert.True(t, c.Admits(ts.Add(-time.Second), "z"))
	assert.False(t, c.Admits(ts.Add(time.Second), "a"))
	assert.True(t, c.Admits(ts, "a"))
	assert.False(t, c.Admits(ts, "m"))

	var none *Cursor
	assert.True(t, none.Admits(ts, "anything"))
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 50, Limit(0, 50, 200))
	assert.Equal(t, 50, Limit(-3, 50, 200))
	assert.Equal(t, 10, Limit(10, 50, 200))
	assert.Equal(t, 200, Limit(1000, 50, 200))
}

func TestComputePage(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := func(s string) (time.Time, string) { return at, s }

	items, next, more := ComputePage([]string{"a", "b", "c"}, 3, key)
	assert.Len(t, items, 3)
	assert.Empty(t, next)
	assert.False(t, more)

	items, next, more = ComputePage([]string{"a", "b", "c", "d"}, 3, key)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.True(t, more)

	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "c", c.ID)
	assert.Equal(t, at, c.CreatedAt)
}
