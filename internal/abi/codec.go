package abi

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/samuelarogbonlo/dot-escrow/internal/scale"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

const maxDepth = 32

func isOption(t *typeEntry) bool {
	return len(t.Type.Path) == 1 && t.Type.Path[0] == "Option" && t.Type.Def.Variant != nil
}

func isResult(t *typeEntry) bool {
	return len(t.Type.Path) == 1 && t.Type.Path[0] == "Result" && t.Type.Def.Variant != nil
}

func isAccountID(t *typeEntry) bool {
	p := t.Type.Path
	return len(p) > 0 && p[len(p)-1] == "AccountId" && t.Type.Def.Composite != nil
}

func (c *Contract) isByte(id int) bool {
	t, ok := c.types[id]
	return ok && t.Type.Def.Primitive == "u8"
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

type valueEncoder struct {
	c   *Contract
	out *scale.Encoder
}

func newValueEncoder(c *Contract) *valueEncoder {
	return &valueEncoder{c: c, out: scale.NewEncoder()}
}

func (e *valueEncoder) encode(id int, v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedType, maxDepth)
	}
	t, err := e.c.lookup(id)
	if err != nil {
		return err
	}

	d := t.Type.Def
	switch {
	case d.Primitive != "":
		return e.primitive(d.Primitive, v)
	case d.Composite != nil:
		return e.composite(t, v, depth)
	case d.Variant != nil:
		return e.variant(t, v, depth)
	case d.Sequence != nil:
		return e.sequence(d.Sequence.Type, v, depth)
	case d.Array != nil:
		return e.array(d.Array.Len, d.Array.Type, v, depth)
	case d.Compact != nil:
		n, err := toUint(v)
		if err != nil {
			return err
		}
		return e.out.WriteCompactBig(n)
	default:
		return e.tuple(d.Tuple, v, depth)
	}
}

func (e *valueEncoder) primitive(kind string, v any) error {
	switch kind {
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: want bool, got %T", ErrInvalidValue, v)
		}
		e.out.WriteBool(b)
		return nil
	case "str":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: want string, got %T", ErrInvalidValue, v)
		}
		e.out.WriteString(s)
		return nil
	case "u8", "u16", "u32", "u64":
		n, err := toUint(v)
		if err != nil {
			return err
		}
		bits, _ := strconv.Atoi(kind[1:])
		if n.BitLen() > bits {
			return fmt.Errorf("%w: %s does not fit %s", ErrInvalidValue, n.Dec(), kind)
		}
		switch bits {
		case 8:
			e.out.WriteU8(uint8(n.Uint64()))
		case 16:
			e.out.WriteU16(uint16(n.Uint64()))
		case 32:
			e.out.WriteU32(uint32(n.Uint64()))
		default:
			e.out.WriteU64(n.Uint64())
		}
		return nil
	case "u128":
		n, err := toUint(v)
		if err != nil {
			return err
		}
		return e.out.WriteU128(n)
	case "i8", "i16", "i32", "i64":
		n, err := toInt(v)
		if err != nil {
			return err
		}
		bits, _ := strconv.Atoi(kind[1:])
		lim := int64(1) << (bits - 1)
		if bits < 64 && (n < -lim || n >= lim) {
			return fmt.Errorf("%w: %d does not fit %s", ErrInvalidValue, n, kind)
		}
		switch bits {
		case 8:
			e.out.WriteU8(uint8(n))
		case 16:
			e.out.WriteU16(uint16(n))
		case 32:
			e.out.WriteU32(uint32(n))
		default:
			e.out.WriteU64(uint64(n))
		}
		return nil
	}
	return fmt.Errorf("%w: primitive %s", ErrUnsupportedType, kind)
}

func (e *valueEncoder) composite(t *typeEntry, v any, depth int) error {
	fields := t.Type.Def.Composite.Fields
	switch {
	case len(fields) == 0:
		return nil
	case fields[0].Name == "":
		if len(fields) == 1 {
			return e.encode(fields[0].Type, v, depth+1)
		}
		items, err := toSlice(v)
		if err != nil {
			return err
		}
		if len(items) != len(fields) {
			return fmt.Errorf("%w: want %d fields, got %d", ErrInvalidValue, len(fields), len(items))
		}
		for i, f := range fields {
			if err := e.encode(f.Type, items[i], depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		m, err := toMap(v)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if err := e.encode(f.Type, m[f.Name], depth+1); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	}
}

func (e *valueEncoder) variant(t *typeEntry, v any, depth int) error {
	variants := t.Type.Def.Variant.Variants

	if isOption(t) {
		if isNil(v) {
			e.out.WriteOptionTag(false)
			return nil
		}
		for _, vr := range variants {
			if vr.Name == "Some" && len(vr.Fields) == 1 {
				e.out.WriteOptionTag(true)
				return e.encode(vr.Fields[0].Type, deref(v), depth+1)
			}
		}
		return fmt.Errorf("%w: malformed option type", ErrUnsupportedType)
	}

	var name string
	var payload any
	switch x := v.(type) {
	case string:
		name = x
	case fmt.Stringer:
		name = x.String()
	default:
		m, err := toMap(v)
		if err != nil || len(m) != 1 {
			return fmt.Errorf("%w: want variant name or single-key map, got %T", ErrInvalidValue, v)
		}
		for k, val := range m {
			name, payload = k, val
		}
	}

	var chosen *variantDef
	for i := range variants {
		if variants[i].Name == name {
			chosen = &variants[i]
			break
		}
	}
	if chosen == nil {
		for i := range variants {
			if strings.EqualFold(variants[i].Name, name) {
				chosen = &variants[i]
				break
			}
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidValue, name)
	}

	e.out.WriteU8(uint8(chosen.Index))
	fields := chosen.Fields
	switch {
	case len(fields) == 0:
		return nil
	case fields[0].Name != "":
		m, err := toMap(payload)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if err := e.encode(f.Type, m[f.Name], depth+1); err != nil {
				return fmt.Errorf("%s.%s: %w", chosen.Name, f.Name, err)
			}
		}
		return nil
	case len(fields) == 1:
		return e.encode(fields[0].Type, payload, depth+1)
	default:
		items, err := toSlice(payload)
		if err != nil {
			return err
		}
		if len(items) != len(fields) {
			return fmt.Errorf("%w: %s wants %d fields, got %d", ErrInvalidValue, chosen.Name, len(fields), len(items))
		}
		for i, f := range fields {
			if err := e.encode(f.Type, items[i], depth+1); err != nil {
				return fmt.Errorf("%s[%d]: %w", chosen.Name, i, err)
			}
		}
		return nil
	}
}

func (e *valueEncoder) sequence(elem int, v any, depth int) error {
	if e.c.isByte(elem) {
		b, err := toBytes(v, -1)
		if err != nil {
			return err
		}
		e.out.WriteBytes(b)
		return nil
	}
	items, err := toSlice(v)
	if err != nil {
		return err
	}
	e.out.WriteCompact(uint64(len(items)))
	for i, item := range items {
		if err := e.encode(elem, item, depth+1); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (e *valueEncoder) array(n, elem int, v any, depth int) error {
	if e.c.isByte(elem) {
		b, err := toBytes(v, n)
		if err != nil {
			return err
		}
		e.out.WriteRaw(b)
		return nil
	}
	items, err := toSlice(v)
	if err != nil {
		return err
	}
	if len(items) != n {
		return fmt.Errorf("%w: want %d elements, got %d", ErrInvalidValue, n, len(items))
	}
	for i, item := range items {
		if err := e.encode(elem, item, depth+1); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (e *valueEncoder) tuple(ids []int, v any, depth int) error {
	if len(ids) == 0 {
		return nil
	}
	items, err := toSlice(v)
	if err != nil {
		return err
	}
	if len(items) != len(ids) {
		return fmt.Errorf("%w: want %d-tuple, got %d", ErrInvalidValue, len(ids), len(items))
	}
	for i, id := range ids {
		if err := e.encode(id, items[i], depth+1); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

type valueDecoder struct {
	c  *Contract
	in *scale.Decoder
}

func newValueDecoder(c *Contract, data []byte) *valueDecoder {
	return &valueDecoder{c: c, in: scale.NewDecoder(data)}
}

func (d *valueDecoder) decode(id int, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedType, maxDepth)
	}
	t, err := d.c.lookup(id)
	if err != nil {
		return nil, err
	}

	def := t.Type.Def
	switch {
	case def.Primitive != "":
		return d.primitive(def.Primitive)
	case def.Composite != nil:
		return d.composite(t, depth)
	case def.Variant != nil:
		return d.variant(t, depth)
	case def.Sequence != nil:
		n, err := d.in.ReadCompact()
		if err != nil {
			return nil, err
		}
		if n > uint64(d.in.Remaining()) {
			return nil, fmt.Errorf("%w: sequence of %d", scale.ErrUnexpectedEOF, n)
		}
		return d.elements(def.Sequence.Type, int(n), depth)
	case def.Array != nil:
		return d.elements(def.Array.Type, def.Array.Len, depth)
	case def.Compact != nil:
		n, err := d.in.ReadCompactBig()
		if err != nil {
			return nil, err
		}
		if n.IsUint64() {
			return n.Uint64(), nil
		}
		return n.Dec(), nil
	default:
		if len(def.Tuple) == 0 {
			return nil, nil
		}
		out := make([]any, 0, len(def.Tuple))
		for _, fid := range def.Tuple {
			v, err := d.decode(fid, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func (d *valueDecoder) primitive(kind string) (any, error) {
	switch kind {
	case "bool":
		return d.in.ReadBool()
	case "str":
		return d.in.ReadString()
	case "u8":
		n, err := d.in.ReadU8()
		return uint64(n), err
	case "u16":
		n, err := d.in.ReadU16()
		return uint64(n), err
	case "u32":
		n, err := d.in.ReadU32()
		return uint64(n), err
	case "u64":
		return d.in.ReadU64()
	case "u128":
		n, err := d.in.ReadU128()
		if err != nil {
			return nil, err
		}
		return n.Dec(), nil
	case "i8":
		n, err := d.in.ReadU8()
		return int64(int8(n)), err
	case "i16":
		n, err := d.in.ReadU16()
		return int64(int16(n)), err
	case "i32":
		n, err := d.in.ReadU32()
		return int64(int32(n)), err
	case "i64":
		n, err := d.in.ReadU64()
		return int64(n), err
	}
	return nil, fmt.Errorf("%w: primitive %s", ErrUnsupportedType, kind)
}

func (d *valueDecoder) composite(t *typeEntry, depth int) (any, error) {
	if isAccountID(t) {
		raw, err := d.in.ReadRaw(32)
		if err != nil {
			return nil, err
		}
		var id ss58.AccountID
		copy(id[:], raw)
		return ss58.Encode(id, d.c.AddressPrefix), nil
	}

	fields := t.Type.Def.Composite.Fields
	return d.fields(fields, depth)
}

func (d *valueDecoder) fields(fields []fieldDef, depth int) (any, error) {
	switch {
	case len(fields) == 0:
		return map[string]any{}, nil
	case fields[0].Name == "":
		if len(fields) == 1 {
			return d.decode(fields[0].Type, depth+1)
		}
		out := make([]any, 0, len(fields))
		for _, f := range fields {
			v, err := d.decode(f.Type, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			v, err := d.decode(f.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out[f.Name] = v
		}
		return out, nil
	}
}

func (d *valueDecoder) variant(t *typeEntry, depth int) (any, error) {
	idx, err := d.in.ReadU8()
	if err != nil {
		return nil, err
	}

	var chosen *variantDef
	for i, vr := range t.Type.Def.Variant.Variants {
		if vr.Index == int(idx) {
			chosen = &t.Type.Def.Variant.Variants[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: variant index %d of %s", ErrInvalidValue, idx, strings.Join(t.Type.Path, "::"))
	}

	if isOption(t) {
		if len(chosen.Fields) == 0 {
			return nil, nil
		}
		return d.decode(chosen.Fields[0].Type, depth+1)
	}
	if len(chosen.Fields) == 0 {
		if isResult(t) {
			return map[string]any{chosen.Name: nil}, nil
		}
		return chosen.Name, nil
	}

	payload, err := d.fields(chosen.Fields, depth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", chosen.Name, err)
	}
	return map[string]any{chosen.Name: payload}, nil
}

func (d *valueDecoder) elements(elem, n int, depth int) (any, error) {
	if d.c.isByte(elem) {
		raw, err := d.in.ReadRaw(n)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(raw), nil
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.decode(elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Go value coercion
// -----------------------------------------------------------------------------

func toUint(v any) (*uint256.Int, error) {
	switch n := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: missing integer", ErrInvalidValue)
	case uint:
		return uint256.NewInt(uint64(n)), nil
	case uint8:
		return uint256.NewInt(uint64(n)), nil
	case uint16:
		return uint256.NewInt(uint64(n)), nil
	case uint32:
		return uint256.NewInt(uint64(n)), nil
	case uint64:
		return uint256.NewInt(n), nil
	case int, int8, int16, int32, int64:
		i, _ := toInt(n)
		if i < 0 {
			return nil, fmt.Errorf("%w: negative value %d", ErrInvalidValue, i)
		}
		return uint256.NewInt(uint64(i)), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return nil, fmt.Errorf("%w: %v is not an unsigned integer", ErrInvalidValue, n)
		}
		return uint256.NewInt(uint64(n)), nil
	case json.Number:
		return toUint(n.String())
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		out, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidValue, n)
		}
		return out, nil
	case *uint256.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil integer", ErrInvalidValue)
		}
		return n.Clone(), nil
	case uint256.Int:
		return n.Clone(), nil
	case *big.Int:
		if n == nil || n.Sign() < 0 {
			return nil, fmt.Errorf("%w: %v is not an unsigned integer", ErrInvalidValue, n)
		}
		out, overflow := uint256.FromBig(n)
		if overflow {
			return nil, fmt.Errorf("%w: %s overflows", ErrInvalidValue, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: want unsigned integer, got %T", ErrInvalidValue, v)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8, uint16, uint32:
		u, _ := toUint(n)
		return int64(u.Uint64()), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
}

// toBytes accepts byte slices, byte arrays (including account ids), hex
// strings and, for 32-byte targets, SS58 addresses. n < 0 means any length.
func toBytes(v any, n int) ([]byte, error) {
	var out []byte
	switch b := v.(type) {
	case []byte:
		out = b
	case ss58.AccountID:
		out = b[:]
	case string:
		switch {
		case strings.HasPrefix(b, "0x"):
			raw, err := hexutil.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not hex", ErrInvalidValue, b)
			}
			out = raw
		case n == 32:
			id, _, err := ss58.Decode(b)
			if err != nil {
				return nil, err
			}
			out = id[:]
		default:
			return nil, fmt.Errorf("%w: %q is not hex", ErrInvalidValue, b)
		}
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Array || rv.Type().Elem().Kind() != reflect.Uint8 {
			return nil, fmt.Errorf("%w: want bytes, got %T", ErrInvalidValue, v)
		}
		out = make([]byte, rv.Len())
		for i := range out {
			out[i] = byte(rv.Index(i).Uint())
		}
	}
	if n >= 0 && len(out) != n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidValue, n, len(out))
	}
	return out, nil
}

func toSlice(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: want list, got %T", ErrInvalidValue, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// toMap accepts string-keyed maps directly and converts structs through
// their JSON form, keeping numbers exact.
func toMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	if isNil(v) {
		return nil, fmt.Errorf("%w: want object, got nil", ErrInvalidValue)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	if k := reflect.Indirect(rv).Kind(); k != reflect.Struct {
		return nil, fmt.Errorf("%w: want object, got %T", ErrInvalidValue, v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}

// HexSelector formats a selector the way metadata files do.
func HexSelector(sel [4]byte) string {
	return "0x" + hex.EncodeToString(sel[:])
}
