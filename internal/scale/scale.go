// Package scale implements the subset of the SCALE codec used by contract
// calls: fixed-width little-endian integers up to 128 bits, compact integers,
// length-prefixed byte strings, booleans and options.
package scale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

var (
	ErrUnexpectedEOF = errors.New("scale: unexpected end of input")
	ErrOverflow      = errors.New("scale: value out of range")
	ErrInvalidBool   = errors.New("scale: invalid bool byte")
	ErrInvalidOption = errors.New("scale: invalid option tag")
)

// maxU128 is 2^128 - 1.
var maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Encoder appends SCALE-encoded values to a buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) WriteRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteU128 encodes v as 16 little-endian bytes.
func (e *Encoder) WriteU128(v *uint256.Int) error {
	if v == nil {
		v = new(uint256.Int)
	}
	if v.Gt(maxU128) {
		return fmt.Errorf("%w: %s exceeds u128", ErrOverflow, v.Dec())
	}
	be := v.Bytes32()
	for i := 31; i >= 16; i-- {
		e.buf = append(e.buf, be[i])
	}
	return nil
}

// WriteCompact encodes v in the compact (variable length) form.
func (e *Encoder) WriteCompact(v uint64) {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2))
	case v < 1<<14:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v<<2)|0b01)
	case v < 1<<30:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v<<2)|0b10)
	default:
		var le [8]byte
		binary.LittleEndian.PutUint64(le[:], v)
		n := 8
		for n > 4 && le[n-1] == 0 {
			n--
		}
		e.buf = append(e.buf, byte((n-4)<<2)|0b11)
		e.buf = append(e.buf, le[:n]...)
	}
}

// WriteCompactBig encodes a value of up to 128 bits in compact form.
func (e *Encoder) WriteCompactBig(v *uint256.Int) error {
	if v.IsUint64() {
		e.WriteCompact(v.Uint64())
		return nil
	}
	if v.Gt(maxU128) {
		return fmt.Errorf("%w: %s exceeds u128", ErrOverflow, v.Dec())
	}
	be := v.Bytes()
	n := len(be)
	e.buf = append(e.buf, byte((n-4)<<2)|0b11)
	for i := n - 1; i >= 0; i-- {
		e.buf = append(e.buf, be[i])
	}
	return nil
}

// WriteBytes encodes a compact length prefix followed by b.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteCompact(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteOptionTag writes the Some/None discriminant.
func (e *Encoder) WriteOptionTag(some bool) {
	e.WriteBool(some)
}

// Decoder reads SCALE-encoded values from a byte slice.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder wraps data for reading.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// ReadRaw returns the next n bytes.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.ReadRaw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, ErrInvalidBool
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.ReadRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.ReadRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadU128 reads 16 little-endian bytes.
func (d *Decoder) ReadU128() (*uint256.Int, error) {
	b, err := d.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	return fromLE(b), nil
}

// ReadCompact reads a compact integer that must fit in 64 bits.
func (d *Decoder) ReadCompact() (uint64, error) {
	v, err := d.ReadCompactBig()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// ReadCompactBig reads a compact integer of up to 128 bits.
func (d *Decoder) ReadCompactBig() (*uint256.Int, error) {
	first, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint256.NewInt(uint64(first >> 2)), nil
	case 0b01:
		next, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		v := (uint64(next)<<8 | uint64(first)) >> 2
		return uint256.NewInt(v), nil
	case 0b10:
		rest, err := d.ReadRaw(3)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32([]byte{first, rest[0], rest[1], rest[2]}) >> 2
		return uint256.NewInt(uint64(v)), nil
	default:
		n := int(first>>2) + 4
		if n > 16 {
			return nil, ErrOverflow
		}
		b, err := d.ReadRaw(n)
		if err != nil {
			return nil, err
		}
		return fromLE(b), nil
	}
}

// ReadBytes reads a compact length prefix and that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadCompact()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 {
		return nil, ErrOverflow
	}
	return d.ReadRaw(int(n))
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionTag reads the Some/None discriminant.
func (d *Decoder) ReadOptionTag() (bool, error) {
	b, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, ErrInvalidOption
}

func fromLE(b []byte) *uint256.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be)
}
