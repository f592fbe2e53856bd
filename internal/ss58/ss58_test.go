package ss58

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice       = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePubKey = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	bob         = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	bobPubKey   = "0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"
)

func TestDecode_KnownAccounts(t *testing.T) {
	id, prefix, err := Decode(alice)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), prefix)
	assert.Equal(t, alicePubKey, id.Hex())

	id, _, err = Decode(bob)
	require.NoError(t, err)
	assert.Equal(t, bobPubKey, id.Hex())
}

func TestEncode_RoundTrip(t *testing.T) {
	id, _, err := Decode(alice)
	require.NoError(t, err)

	assert.Equal(t, alice, Encode(id, 42))

	for _, prefix := range []uint16{0, 2, 63, 64, 1284, 16383} {
		addr := Encode(id, prefix)
		got, gotPrefix, err := Decode(addr)
		require.NoError(t, err, "prefix %d", prefix)
		assert.Equal(t, prefix, gotPrefix)
		assert.Equal(t, id, got)
	}
}

func TestDecode_HexKey(t *testing.T) {
	id, prefix, err := Decode(alicePubKey)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), prefix)
	assert.Equal(t, alicePubKey, id.Hex())
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want error
	}{
		{"empty", "", ErrInvalidAddress},
		{"not base58", "0OIl", ErrInvalidAddress},
		{"ethereum address", "0x1234567890abcdef1234567890abcdef12345678", ErrInvalidAddress},
		{"truncated", alice[:20], ErrInvalidAddress},
		{"bad checksum", alice[:len(alice)-1] + "Z", ErrInvalidChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.addr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEqual(t *testing.T) {
	id, _, err := Decode(alice)
	require.NoError(t, err)

	assert.True(t, Equal(alice, Encode(id, 0)))
	assert.True(t, Equal(alice, alicePubKey))
	assert.False(t, Equal(alice, bob))
	assert.False(t, Equal(alice, "garbage"))
}
