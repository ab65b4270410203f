package vm

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestCompareBytes(t *testing.T) {
	tests := []struct {
		l, r string
		want int
	}{
		{"", "", 0},
		{"a", "a", 0},
		{"a", "b", -1},
		{"b", "a", 1},
		{"ab", "abc", -1},
		{"abc", "ab", 1},
		{"ab\x00c", "ab\x00d", -1},
		{"ab\x00d", "ab\x00c", 1},
		{"ab\x00c", "ab\x00c", 0},
		{"ab", "ab\x00", -1},
		{"ab\x00", "ab", 1},
		{"ab\x00", "abc", -1},
		{"\x00", "", 1},
		{"\x00\x00", "\x00\x01", -1},
		{"\xff", "a", 1},
	}

	for _, tt := range tests {
		if got := CompareBytes([]byte(tt.l), []byte(tt.r)); got != tt.want {
			t.Errorf("CompareBytes(%q, %q) = %d, want %d", tt.l, tt.r, got, tt.want)
		}
	}
}

func TestCompareBytesIsTotalOrder(t *testing.T) {
	samples := []string{"", "\x00", "a", "a\x00", "a\x00b", "a\x00\x00", "ab", "b", "\xff\x00", "\xff"}
	for _, l := range samples {
		for _, r := range samples {
			got := CompareBytes([]byte(l), []byte(r))
			want := bytes.Compare([]byte(l), []byte(r))
			if got != want {
				t.Errorf("CompareBytes(%q, %q) = %d, want %d", l, r, got, want)
			}
			if back := CompareBytes([]byte(r), []byte(l)); back != -got {
				t.Errorf("CompareBytes not antisymmetric for %q, %q", l, r)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// String objects
// ---------------------------------------------------------------------------

func TestStringPayloadIsTerminated(t *testing.T) {
	_, table := newTestTable(t, 8, 0)

	ref, err := table.NewString([]byte("abc"))
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	s := table.Get(ref)

	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if got := s.CString(); !bytes.Equal(got, []byte("abc\x00")) {
		t.Errorf("CString() = %q, want %q", got, "abc\x00")
	}
	if s.String() != "abc" {
		t.Errorf("String() = %q, want abc", s.String())
	}
	if s.Extra() != 0 {
		t.Errorf("Extra() = %d, want 0", s.Extra())
	}
	if s.Kind() != KindShort || !s.IsShort() {
		t.Errorf("Kind() = %v, want short", s.Kind())
	}
}

func TestStringCopiesCallerBytes(t *testing.T) {
	_, table := newTestTable(t, 8, 0)

	buf := []byte("mutable")
	ref, err := table.NewString(buf)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	buf[0] = 'M'

	if got := table.Get(ref).String(); got != "mutable" {
		t.Errorf("interned content = %q after caller mutation, want mutable", got)
	}
}

func TestContentEqual(t *testing.T) {
	_, table := newTestTable(t, 8, 0)
	long := bytes.Repeat([]byte("x"), MaxShortLen+1)

	s1, _ := table.NewString([]byte("same"))
	s2, _ := table.NewString([]byte("same"))
	s3, _ := table.NewString([]byte("other"))
	l1, _ := table.NewString(long)
	l2, _ := table.NewString(long)
	l3, _ := table.NewString(append(bytes.Clone(long), 'y'))

	get := table.Get
	if !ContentEqual(get(s1), get(s2)) {
		t.Error("equal short strings reported unequal")
	}
	if ContentEqual(get(s1), get(s3)) {
		t.Error("different short strings reported equal")
	}
	if !ContentEqual(get(l1), get(l2)) {
		t.Error("equal long strings reported unequal")
	}
	if get(l1) == get(l2) {
		t.Error("long strings with equal content share an object")
	}
	if ContentEqual(get(l1), get(l3)) {
		t.Error("long strings of different length reported equal")
	}
	if ContentEqual(get(s1), get(l1)) {
		t.Error("short and long strings reported equal")
	}
}

func TestCompareStrings(t *testing.T) {
	_, table := newTestTable(t, 8, 0)

	a, _ := table.NewString([]byte("ab\x00c"))
	b, _ := table.NewString([]byte("ab\x00d"))

	if got := Compare(table.Get(a), table.Get(b)); got != -1 {
		t.Errorf("Compare(ab\\0c, ab\\0d) = %d, want -1", got)
	}
	if got := Compare(table.Get(a), table.Get(a)); got != 0 {
		t.Errorf("Compare(x, x) = %d, want 0", got)
	}
}
