package vm

// Value is a NaN-boxed handle to a runtime string.
//
// Values live in the quiet NaN space with a 3-bit tag:
//   - Nil: quiet NaN + tagSpecial
//   - String: quiet NaN + tagString + 15-bit generation + long bit + 32-bit StringRef
//
// The long bit lets callers pick identity equality for short strings
// without touching the heap. The generation ties the Value to one
// allocation of its slot.
type Value uint64

const (
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	tagSpecial uint64 = 0x0003000000000000
	tagString  uint64 = 0x0004000000000000

	// Set in string Values that refer to long strings. Sits above the
	// 32-bit StringRef.
	stringLongBit uint64 = 0x0000000100000000

	// Slot generation, bits 33..47.
	stringGenShift        = 33
	maxStringGen   uint16 = 0x7FFF
)

// Nil is the Value returned alongside errors and for absent strings.
const Nil Value = Value(nanBits | tagSpecial)

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsString returns true if v refers to a heap string.
func (v Value) IsString() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagString)
}

// IsShortString returns true if v refers to an interned string. Two short
// string Values are equal content exactly when they are the same Value.
func (v Value) IsShortString() bool {
	return v.IsString() && uint64(v)&stringLongBit == 0
}

// IsLongString returns true if v refers to a long, non-interned string.
func (v Value) IsLongString() bool {
	return v.IsString() && uint64(v)&stringLongBit != 0
}

// StringRef returns the heap handle encoded in v.
// Panics if v is not a string.
func (v Value) StringRef() StringRef {
	if !v.IsString() {
		panic("Value.StringRef: not a string")
	}
	return StringRef(uint32(uint64(v)))
}

// StringKind returns the kind recorded in v.
// Panics if v is not a string.
func (v Value) StringKind() StringKind {
	if !v.IsString() {
		panic("Value.StringKind: not a string")
	}
	if uint64(v)&stringLongBit != 0 {
		return KindLong
	}
	return KindShort
}

func (v Value) stringGen() uint16 {
	return uint16(uint64(v)>>stringGenShift) & maxStringGen
}

// FromString creates a Value referring to s.
func FromString(s *String) Value {
	bits := nanBits | tagString | uint64(s.ref) | uint64(s.gen&maxStringGen)<<stringGenShift
	if s.kind == KindLong {
		bits |= stringLongBit
	}
	return Value(bits)
}
