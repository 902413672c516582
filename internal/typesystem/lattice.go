package typesystem

import "math"

// The numeric coercion lattice:
//
//	i8 < i16 < i32 < i64
//	u8 < u16 < u32 < u64
//	f32 < f64
//
// plus integer -> float promotion. Nothing else widens implicitly: no
// numeric<->string, no numeric<->bool, no signed<->unsigned.

// width is the rank of a tag inside its own chain.
var width = map[Tag]int{
	I8: 1, I16: 2, I32: 3, I64: 4,
	U8: 1, U16: 2, U32: 3, U64: 4,
	F32: 1, F64: 2,
}

// Widen resolves the result tag for a pair of static numeric tags. It returns
// (Invalid, false) when no implicit widening is permitted.
func Widen(a, b Tag) (Tag, bool) {
	if a == b && a.Known() && a != Dyn {
		return a, true
	}

	fa, fb := a.Family(), b.Family()
	switch {
	case fa == fb && (fa == FamSigned || fa == FamUnsigned || fa == FamFloat):
		if width[a] >= width[b] {
			return a, true
		}
		return b, true
	case fa == FamFloat && (fb == FamSigned || fb == FamUnsigned):
		// Integer operand promotes to the float operand's type.
		return a, true
	case fb == FamFloat && (fa == FamSigned || fa == FamUnsigned):
		return b, true
	}
	return Invalid, false
}

// Widens reports whether from may implicitly widen to to (reflexively).
func Widens(from, to Tag) bool {
	w, ok := Widen(from, to)
	return ok && w == to
}

// signed integer ranges, keyed by tag.
var intRange = map[Tag][2]int64{
	I8:  {math.MinInt8, math.MaxInt8},
	I16: {math.MinInt16, math.MaxInt16},
	I32: {math.MinInt32, math.MaxInt32},
	I64: {math.MinInt64, math.MaxInt64},
}

// unsigned upper bounds, keyed by tag. Integer payloads are carried in int64,
// which caps u64 at MaxInt64.
var uintMax = map[Tag]uint64{
	U8:  math.MaxUint8,
	U16: math.MaxUint16,
	U32: math.MaxUint32,
	U64: math.MaxInt64,
}

// WrapInt reduces v into tag's representable range: two's complement wrapping
// for signed tags, modular reduction for unsigned ones. Arithmetic results
// are wrapped to the width of their resolved tag; i64 and u64 pass through
// since int64 is the carrier.
func WrapInt(tag Tag, v int64) int64 {
	switch tag {
	case I8:
		return int64(int8(v))
	case I16:
		return int64(int16(v))
	case I32:
		return int64(int32(v))
	case U8:
		return int64(uint8(v))
	case U16:
		return int64(uint16(v))
	case U32:
		return int64(uint32(v))
	case U64:
		return v & math.MaxInt64
	}
	return v
}

// FitsInt reports whether an integer literal is representable by tag.
func FitsInt(tag Tag, v int64) bool {
	if r, ok := intRange[tag]; ok {
		return v >= r[0] && v <= r[1]
	}
	if max, ok := uintMax[tag]; ok {
		return v >= 0 && uint64(v) <= max
	}
	return false
}
