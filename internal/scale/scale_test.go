package scale

import (
	"encoding/hex"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCompact(t *testing.T) {
	tests := []struct {
		value uint64
		want  string
	}{
		{0, "00"},
		{1, "04"},
		{42, "a8"},
		{63, "fc"},
		{64, "0101"},
		{69, "1501"},
		{16383, "fdff"},
		{16384, "02000100"},
		{65535, "feff0300"},
		{1073741823, "feffffff"},
		{1 << 30, "0300000040"},
		{1 << 32, "070000000001"},
	}

	for _, tt := range tests {
		e := NewEncoder()
		e.WriteCompact(tt.value)
		assert.Equal(t, tt.want, hex.EncodeToString(e.Bytes()), "compact(%d)", tt.value)

		got, err := NewDecoder(e.Bytes()).ReadCompact()
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
	}
}

func TestCompactBig(t *testing.T) {
	v, err := uint256.FromDecimal("340282366920938463463374607431768211455") // 2^128-1
	require.NoError(t, err)

	e := NewEncoder()
	require.NoError(t, e.WriteCompactBig(v))
	assert.Len(t, e.Bytes(), 17)
	assert.Equal(t, byte(0x33), e.Bytes()[0])

	got, err := NewDecoder(e.Bytes()).ReadCompactBig()
	require.NoError(t, err)
	assert.True(t, got.Eq(v))

	_, err = NewDecoder(e.Bytes()).ReadCompact()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestU128(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.WriteU128(uint256.NewInt(1)))
	assert.Equal(t, "01000000000000000000000000000000", hex.EncodeToString(e.Bytes()))

	got, err := NewDecoder(e.Bytes()).ReadU128()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Uint64())

	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	assert.ErrorIs(t, NewEncoder().WriteU128(tooBig), ErrOverflow)
}

func TestStringAndOption(t *testing.T) {
	e := NewEncoder()
	e.WriteString("escrow_1")
	e.WriteOptionTag(false)
	e.WriteOptionTag(true)
	e.WriteU32(7)

	d := NewDecoder(e.Bytes())
	s, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "escrow_1", s)

	some, err := d.ReadOptionTag()
	require.NoError(t, err)
	assert.False(t, some)

	some, err = d.ReadOptionTag()
	require.NoError(t, err)
	assert.True(t, some)

	n, err := d.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), n)
	assert.Equal(t, 0, d.Remaining())
}

func TestDecoderErrors(t *testing.T) {
	_, err := NewDecoder(nil).ReadU8()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewDecoder([]byte{0x02}).ReadBool()
	assert.ErrorIs(t, err, ErrInvalidBool)

	_, err = NewDecoder([]byte{0x05}).ReadOptionTag()
	assert.ErrorIs(t, err, ErrInvalidOption)

	// length prefix says 2 bytes, only 1 present
	_, err = NewDecoder([]byte{0x08, 0x61}).ReadBytes()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}
