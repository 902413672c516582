package typesystem

// Tag is a runtime type tag. The set is closed: sigil has no user-defined
// primitive types, so every payload that can exist at runtime resolves to one
// of the tags below.
type Tag string

const (
	I8  Tag = "i8"
	I16 Tag = "i16"
	I32 Tag = "i32"
	I64 Tag = "i64"
	U8  Tag = "u8"
	U16 Tag = "u16"
	U32 Tag = "u32"
	U64 Tag = "u64"
	F32 Tag = "f32"
	F64 Tag = "f64"

	Bool   Tag = "bool"
	String Tag = "string"
	Unit   Tag = "unit"
	Record Tag = "record"
	Vec    Tag = "vec"

	// Dyn is the dynamic marker on let-bindings and parameters. It is a valid
	// declared type but never the resolved tag of a payload.
	Dyn Tag = "dyn"

	// Invalid is returned by lattice lookups that have no answer.
	Invalid Tag = ""
)

func (t Tag) String() string { return string(t) }

// Family groups tags for operator dispatch. The coercion table in the value
// engine is keyed by the family pair of the resolved tags.
type Family uint8

const (
	FamInvalid Family = iota
	FamSigned
	FamUnsigned
	FamFloat
	FamBool
	FamString
	FamUnit
	FamRecord
	FamVec
)

func (t Tag) Family() Family {
	switch t {
	case I8, I16, I32, I64:
		return FamSigned
	case U8, U16, U32, U64:
		return FamUnsigned
	case F32, F64:
		return FamFloat
	case Bool:
		return FamBool
	case String:
		return FamString
	case Unit:
		return FamUnit
	case Record:
		return FamRecord
	case Vec:
		return FamVec
	}
	return FamInvalid
}

func (t Tag) IsNumeric() bool {
	switch t.Family() {
	case FamSigned, FamUnsigned, FamFloat:
		return true
	}
	return false
}

func (t Tag) IsInteger() bool {
	f := t.Family()
	return f == FamSigned || f == FamUnsigned
}

func (t Tag) IsFloat() bool { return t.Family() == FamFloat }

// Known reports whether t is one of the closed tag set (including Dyn).
func (t Tag) Known() bool {
	return t == Dyn || t.Family() != FamInvalid
}
