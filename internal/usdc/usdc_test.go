package usdc

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint64
	}{
		{"one dollar", "1.00", 1_000_000},
		{"fifty cents", "0.50", 500_000},
		{"hundred", "100", 100_000_000},
		{"smallest unit", "0.000001", 1},
		{"short frac", "1.5", 1_500_000},
		{"no leading digit", ".25", 250_000},
		{"trailing dot", "3.", 3_000_000},
		{"thousands separators", "1,000.5", 1_000_500_000},
		{"leading zeros", "007.50", 7_500_000},
		{"zero", "0", 0},
		{"zero with frac", "0.000000", 0},
		{"surplus zero digits", "2.500000000", 2_500_000},
		{"padded", "  42 ", 42_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Uint64())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"-1", ErrInvalid},
		{"1.2.3", ErrInvalid},
		{"abc", ErrInvalid},
		{"1e6", ErrInvalid},
		{".", ErrInvalid},
		{"1.1234567", ErrPrecision},
		{strings.Repeat("9", 80), ErrOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_BeyondUint64(t *testing.T) {
	got, err := Parse("340282366920938463463374607431768.211455")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", got.Dec())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.000000", Format(nil))
	assert.Equal(t, "0.000000", Format(uint256.NewInt(0)))
	assert.Equal(t, "0.000005", Format(uint256.NewInt(5)))
	assert.Equal(t, "1.500000", Format(uint256.NewInt(1_500_000)))
	assert.Equal(t, "999999.999999", Format(uint256.NewInt(999_999_999_999)))
}

func TestFormatParse_Inverse(t *testing.T) {
	for _, s := range []string{"0.000001", "1.500000", "123456.789012"} {
		assert.Equal(t, s, Format(MustParse(s)))
	}
}

func TestSum(t *testing.T) {
	total, err := Sum("100", "50.5", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "151.000000", Format(total))

	zero, err := Sum()
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = Sum("1", "x")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "amount 1")
}

func TestEqual(t *testing.T) {
	eq, err := Equal("1.5", "1.500000")
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = Equal("1,000", "999.999999")
	require.NoError(t, err)
	assert.False(t, eq)

	_, err = Equal("1", "")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}
