package vm

import "bytes"

// ---------------------------------------------------------------------------
// String: immutable heap string object
// ---------------------------------------------------------------------------

// MaxShortLen is the longest payload that is interned. Longer strings are
// created fresh on every request and never deduplicated.
const MaxShortLen = 40

// StringKind distinguishes interned short strings from long strings.
type StringKind uint8

const (
	KindShort StringKind = iota + 1
	KindLong
)

func (k StringKind) String() string {
	switch k {
	case KindShort:
		return "short"
	case KindLong:
		return "long"
	default:
		return "invalid"
	}
}

// StringRef is a handle to a String in a Heap. The zero StringRef refers to
// nothing.
type StringRef uint32

// NoString is the empty handle.
const NoString StringRef = 0

// stringHeaderSize is the accounted size of the fixed metadata that precedes
// the payload: len(4) + hash(4) + kind(1) + extra(1) + next(4) + gen(2).
const stringHeaderSize = 16

// String is an immutable byte string with a cached hash. The payload is
// stored with one trailing zero byte for consumers that expect a terminator.
// Short strings can only be created by a StringTable.
type String struct {
	data  []byte // payload followed by a single 0
	hash  uint32
	kind  StringKind
	extra uint8
	next  StringRef // bucket chain link, short strings only
	ref   StringRef
	gen   uint16 // slot generation, see Heap.Resolve
}

// Bytes returns the payload without the terminator. Callers must not modify
// the returned slice.
func (s *String) Bytes() []byte {
	return s.data[:len(s.data)-1]
}

// CString returns the payload including the trailing zero byte.
func (s *String) CString() []byte {
	return s.data
}

// Len returns the payload length in bytes.
func (s *String) Len() int {
	return len(s.data) - 1
}

// Hash returns the hash computed when the string was created.
func (s *String) Hash() uint32 {
	return s.hash
}

// Kind returns whether the string is short (interned) or long.
func (s *String) Kind() StringKind {
	return s.kind
}

// IsShort reports whether the string is interned.
func (s *String) IsShort() bool {
	return s.kind == KindShort
}

// Extra returns the runtime metadata byte (zero unless a reserved word).
func (s *String) Extra() uint8 {
	return s.extra
}

// Ref returns the handle of the string in its heap.
func (s *String) Ref() StringRef {
	return s.ref
}

func (s *String) String() string {
	return string(s.Bytes())
}

// allocSize is the number of bytes the heap accounts for this object.
func (s *String) allocSize() int {
	return stringHeaderSize + len(s.data)
}

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

// ContentEqual reports whether a and b hold the same bytes. Short strings are
// unique per content, so identity decides; long strings compare bytes.
func ContentEqual(a, b *String) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindShort {
		return a == b
	}
	return equalLong(a, b)
}

func equalLong(a, b *String) bool {
	return a == b || (a.Len() == b.Len() && bytes.Equal(a.Bytes(), b.Bytes()))
}

// Compare orders a and b byte-wise. It returns -1, 0 or +1.
func Compare(a, b *String) int {
	if a == b {
		return 0
	}
	return CompareBytes(a.Bytes(), b.Bytes())
}

// CompareBytes orders l and r as unsigned byte sequences that may contain
// zero bytes. Each zero-delimited segment is compared in turn; when both
// segments match, the side that ends at the zero sorts first and otherwise
// comparison resumes after it.
func CompareBytes(l, r []byte) int {
	for {
		ls, rs := segment(l), segment(r)
		if c := bytes.Compare(ls, rs); c != 0 {
			return c
		}
		// Equal up to a zero byte (or the end) at offset n in both.
		n := len(ls)
		if n == len(r) {
			if n == len(l) {
				return 0
			}
			return 1
		}
		if n == len(l) {
			return -1
		}
		n++
		l, r = l[n:], r[n:]
	}
}

// segment returns the prefix of b up to, not including, the first zero byte.
func segment(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}
