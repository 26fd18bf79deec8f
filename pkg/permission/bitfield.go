package permission

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// BitField is an immutable arbitrary-width bitmask used for all permission
// arithmetic. The zero value is the empty mask.
type BitField struct {
	set *bitset.BitSet
}

// NewBitField returns a BitField holding the given 64 bits.
func NewBitField(bits uint64) BitField {
	return fromUint64(bits)
}

func fromUint64(bits uint64) BitField {
	if bits == 0 {
		return BitField{}
	}
	return BitField{set: bitset.From([]uint64{bits})}
}

func fromBig(n *big.Int) BitField {
	if n == nil || n.Sign() <= 0 {
		return BitField{}
	}
	set := bitset.New(uint(n.BitLen()))
	for i := 0; i < n.BitLen(); i++ {
		if n.Bit(i) == 1 {
			set.Set(uint(i))
		}
	}
	return BitField{set: set}
}

func (b BitField) bits() *bitset.BitSet {
	if b.set == nil {
		return bitset.New(0)
	}
	return b.set
}

// Resolve normalizes v into a BitField. Integers, numeric strings, nested
// slices of resolvables, BitFields and bitsets are recognized; anything else
// resolves to the empty mask.
func Resolve(v any) BitField {
	switch x := v.(type) {
	case nil:
		return BitField{}
	case BitField:
		return x
	case *BitField:
		if x == nil {
			return BitField{}
		}
		return *x
	case *bitset.BitSet:
		if x == nil {
			return BitField{}
		}
		return BitField{set: x.Clone()}
	case Permission:
		return fromUint64(uint64(x))
	case UserPermission:
		return fromUint64(uint64(x))
	case uint64:
		return fromUint64(x)
	case int64:
		return fromUint64(uint64(x))
	case int:
		return fromUint64(uint64(x))
	case uint32:
		return fromUint64(uint64(x))
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return BitField{}
		}
		return fromUint64(uint64(x))
	case json.Number:
		return resolveString(x.String())
	case string:
		return resolveString(x)
	case *big.Int:
		return fromBig(x)
	case []any:
		out := BitField{}
		for _, item := range x {
			out = out.Or(Resolve(item))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromUint64(uint64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint64(rv.Uint())
	case reflect.Slice, reflect.Array:
		out := BitField{}
		for i := 0; i < rv.Len(); i++ {
			out = out.Or(Resolve(rv.Index(i).Interface()))
		}
		return out
	}
	return BitField{}
}

func resolveString(s string) BitField {
	s = strings.TrimSpace(s)
	if s == "" {
		return BitField{}
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return fromUint64(u)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BitField{}
	}
	return fromBig(n)
}

// Or returns b | Resolve(v).
func (b BitField) Or(v any) BitField {
	other := Resolve(v)
	if b.set == nil {
		return other
	}
	if other.set == nil {
		return b
	}
	return BitField{set: b.set.Union(other.set)}
}

// And returns b & Resolve(v).
func (b BitField) And(v any) BitField {
	other := Resolve(v)
	if b.set == nil || other.set == nil {
		return BitField{}
	}
	return BitField{set: b.set.Intersection(other.set)}
}

// AndNot returns b &^ Resolve(v).
func (b BitField) AndNot(v any) BitField {
	other := Resolve(v)
	if b.set == nil {
		return BitField{}
	}
	if other.set == nil {
		return b
	}
	return BitField{set: b.set.Difference(other.set)}
}

// Not returns the complement of b within the lowest width bits.
func (b BitField) Not(width uint) BitField {
	full := bitset.New(width)
	for i := uint(0); i < width; i++ {
		full.Set(i)
	}
	return BitField{set: full.Difference(b.bits())}
}

// Has reports whether the bit at index i is set.
func (b BitField) Has(i uint) bool {
	return b.set != nil && b.set.Test(i)
}

// IsZero reports whether no bit is set.
func (b BitField) IsZero() bool {
	return b.set == nil || b.set.None()
}

// Equal reports whether b and v have exactly the same bits set, regardless of
// the underlying width.
func (b BitField) Equal(v any) bool {
	other := Resolve(v)
	return b.AndNot(other).IsZero() && other.AndNot(b).IsZero()
}

// BitwiseAndEq ORs values together and reports whether b has every bit of the
// combined mask set.
func (b BitField) BitwiseAndEq(values ...any) bool {
	mask := BitField{}
	for _, v := range values {
		mask = mask.Or(v)
	}
	return mask.AndNot(b).IsZero()
}

// Any reports whether b shares at least one bit with Resolve(v).
func (b BitField) Any(v any) bool {
	return !b.And(v).IsZero()
}

// Uint64 returns the lowest 64 bits.
func (b BitField) Uint64() uint64 {
	if b.set == nil {
		return 0
	}
	var out uint64
	for i, ok := b.set.NextSet(0); ok && i < 64; i, ok = b.set.NextSet(i + 1) {
		out |= 1 << i
	}
	return out
}

// Big returns the value as an arbitrary-precision integer.
func (b BitField) Big() *big.Int {
	n := new(big.Int)
	if b.set == nil {
		return n
	}
	for i, ok := b.set.NextSet(0); ok; i, ok = b.set.NextSet(i + 1) {
		n.SetBit(n, int(i), 1)
	}
	return n
}

// String renders the decimal value.
func (b BitField) String() string {
	return b.Big().String()
}

// MarshalJSON encodes the mask as a JSON number.
func (b BitField) MarshalJSON() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (b *BitField) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*b = BitField{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("decode bitfield: %w", err)
		}
		s = str
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("decode bitfield: invalid number %q", s)
	}
	*b = fromBig(n)
	return nil
}
