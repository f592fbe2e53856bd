// Package ss58 converts between SS58 address strings and 32-byte account ids.
package ss58

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidAddress  = errors.New("ss58: invalid address")
	ErrInvalidChecksum = errors.New("ss58: invalid checksum")
	ErrInvalidPrefix   = errors.New("ss58: invalid network prefix")
)

// AccountID is the chain's native 32-byte account identifier.
type AccountID [32]byte

// Hex returns the 0x-prefixed hex form.
func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether every byte is zero.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

var checksumPrefix = []byte("SS58PRE")

const checksumLen = 2

// Decode parses an SS58 address, or a 0x-prefixed 32-byte hex public key,
// into an account id. The returned prefix is 0 for hex input.
func Decode(addr string) (AccountID, uint16, error) {
	var id AccountID
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return id, 0, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.HasPrefix(addr, "0x") {
		raw, err := hex.DecodeString(addr[2:])
		if err != nil || len(raw) != len(id) {
			return id, 0, fmt.Errorf("%w: %q is not a 32-byte hex key", ErrInvalidAddress, addr)
		}
		copy(id[:], raw)
		return id, 0, nil
	}

	data := base58.Decode(addr)
	if len(data) == 0 {
		return id, 0, fmt.Errorf("%w: %q is not base58", ErrInvalidAddress, addr)
	}

	var prefix uint16
	var prefixLen int
	switch {
	case data[0] < 64:
		prefix = uint16(data[0])
		prefixLen = 1
	case data[0] < 128:
		if len(data) < 2 {
			return id, 0, ErrInvalidPrefix
		}
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return id, 0, fmt.Errorf("%w: first byte %d", ErrInvalidPrefix, data[0])
	}

	if len(data) != prefixLen+len(id)+checksumLen {
		return id, 0, fmt.Errorf("%w: %q has length %d", ErrInvalidAddress, addr, len(data))
	}

	body := data[:len(data)-checksumLen]
	sum := checksum(body)
	if !bytes.Equal(sum, data[len(data)-checksumLen:]) {
		return id, 0, fmt.Errorf("%w: %q", ErrInvalidChecksum, addr)
	}

	copy(id[:], data[prefixLen:prefixLen+len(id)])
	return id, prefix, nil
}

// Encode formats an account id as an SS58 address for the given network.
func Encode(id AccountID, prefix uint16) string {
	var body []byte
	if prefix < 64 {
		body = append(body, byte(prefix))
	} else {
		first := byte((prefix&0b1111_1100)>>2) | 0b0100_0000
		second := byte(prefix>>8) | byte((prefix&0b11)<<6)
		body = append(body, first, second)
	}
	body = append(body, id[:]...)
	body = append(body, checksum(body)...)
	return base58.Encode(body)
}

// Valid reports whether addr decodes to an account id.
func Valid(addr string) bool {
	_, _, err := Decode(addr)
	return err == nil
}

// Equal reports whether two addresses refer to the same account, regardless
// of network prefix or format.
func Equal(a, b string) bool {
	ida, _, err := Decode(a)
	if err != nil {
		return false
	}
	idb, _, err := Decode(b)
	if err != nil {
		return false
	}
	return ida == idb
}

func checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPrefix)
	h.Write(body)
	return h.Sum(nil)[:checksumLen]
}
