package typesystem

import "testing"

func TestWidenSameTag(t *testing.T) {
	for _, tag := range []Tag{I8, I16, I32, I64, U8, U16, U32, U64, F32, F64} {
		got, ok := Widen(tag, tag)
		if !ok || got != tag {
			t.Errorf("Widen(%s, %s) = (%s, %v), want (%s, true)", tag, tag, got, ok, tag)
		}
	}
}

func TestWidenSignedChain(t *testing.T) {
	tests := []struct {
		a, b, want Tag
	}{
		{I8, I16, I16},
		{I16, I8, I16},
		{I8, I64, I64},
		{I32, I64, I64},
		{U8, U32, U32},
		{U16, U64, U64},
		{F32, F64, F64},
	}
	for _, tt := range tests {
		got, ok := Widen(tt.a, tt.b)
		if !ok || got != tt.want {
			t.Errorf("Widen(%s, %s) = (%s, %v), want (%s, true)", tt.a, tt.b, got, ok, tt.want)
		}
	}
}

func TestWidenIntToFloatPromotion(t *testing.T) {
	tests := []struct {
		a, b, want Tag
	}{
		{I32, F64, F64},
		{F64, I32, F64},
		{I64, F32, F32},
		{U8, F32, F32},
	}
	for _, tt := range tests {
		got, ok := Widen(tt.a, tt.b)
		if !ok || got != tt.want {
			t.Errorf("Widen(%s, %s) = (%s, %v), want (%s, true)", tt.a, tt.b, got, ok, tt.want)
		}
	}
}

func TestWidenRejected(t *testing.T) {
	pairs := [][2]Tag{
		{I32, U32},  // no signed<->unsigned
		{U8, I8},
		{I64, String}, // no numeric<->string
		{String, F64},
		{Bool, I8}, // no numeric<->bool
		{Bool, String},
		{Unit, I32},
	}
	for _, p := range pairs {
		if got, ok := Widen(p[0], p[1]); ok {
			t.Errorf("Widen(%s, %s) = %s, want rejection", p[0], p[1], got)
		}
	}
}

func TestWidensIsDirectional(t *testing.T) {
	if !Widens(I8, I64) {
		t.Error("i8 should widen to i64")
	}
	if Widens(I64, I8) {
		t.Error("i64 must not narrow to i8")
	}
	if !Widens(I32, I32) {
		t.Error("Widens must be reflexive")
	}
}

func TestFitsInt(t *testing.T) {
	tests := []struct {
		tag  Tag
		v    int64
		want bool
	}{
		{I8, 127, true},
		{I8, 128, false},
		{I8, -128, true},
		{I8, -129, false},
		{I16, 40000, false},
		{U8, 255, true},
		{U8, 256, false},
		{U8, -1, false},
		{U64, 1 << 62, true},
		{I64, -1 << 62, true},
	}
	for _, tt := range tests {
		if got := FitsInt(tt.tag, tt.v); got != tt.want {
			t.Errorf("FitsInt(%s, %d) = %v, want %v", tt.tag, tt.v, got, tt.want)
		}
	}
}

func TestWrapInt(t *testing.T) {
	tests := []struct {
		tag  Tag
		v    int64
		want int64
	}{
		{I8, 128, -128},
		{I8, -129, 127},
		{I8, 5, 5},
		{I16, 1 << 15, -(1 << 15)},
		{I32, 1 << 31, -(1 << 31)},
		{U8, 256, 0},
		{U8, 257, 1},
		{U16, -1, 65535},
		{U32, 1 << 32, 0},
		{I64, -1 << 62, -1 << 62},
	}
	for _, tt := range tests {
		if got := WrapInt(tt.tag, tt.v); got != tt.want {
			t.Errorf("WrapInt(%s, %d) = %d, want %d", tt.tag, tt.v, got, tt.want)
		}
	}
}

func TestFamily(t *testing.T) {
	if I8.Family() != FamSigned || U32.Family() != FamUnsigned || F64.Family() != FamFloat {
		t.Error("numeric families misclassified")
	}
	if !I32.IsNumeric() || Bool.IsNumeric() || String.IsNumeric() {
		t.Error("IsNumeric misclassified")
	}
	if Tag("i128").Known() {
		t.Error("unknown tag reported as known")
	}
	if !Dyn.Known() {
		t.Error("dyn must be a known declared type")
	}
}
