package vm

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeapAllocAndFree(t *testing.T) {
	h := NewHeap(0)

	s, err := h.allocString(KindLong, []byte("payload"), 42)
	if err != nil {
		t.Fatalf("allocString: %v", err)
	}
	if s.Ref() == NoString {
		t.Fatal("allocated string has no ref")
	}
	if h.Get(s.Ref()) != s {
		t.Error("Get did not return the allocated object")
	}

	stats := h.Stats()
	if stats.LongStrings != 1 || stats.Bytes != stringHeaderSize+len("payload")+1 {
		t.Errorf("stats = %+v, want 1 long string of %d bytes", stats, stringHeaderSize+8)
	}

	if err := h.Free(s.Ref()); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if h.Get(s.Ref()) != nil {
		t.Error("freed object still reachable")
	}
	if h.Outstanding() != 0 || h.Stats().Bytes != 0 {
		t.Errorf("after free: outstanding %d, bytes %d, want 0, 0", h.Outstanding(), h.Stats().Bytes)
	}
	if st := h.Stats(); st.Allocs != 1 || st.Frees != 1 {
		t.Errorf("allocs/frees = %d/%d, want 1/1", st.Allocs, st.Frees)
	}
}

func TestHeapRecyclesSlots(t *testing.T) {
	h := NewHeap(0)

	a, _ := h.allocString(KindLong, []byte("a"), 0)
	ref := a.Ref()
	if err := h.Free(ref); err != nil {
		t.Fatalf("Free: %v", err)
	}
	b, _ := h.allocString(KindLong, []byte("b"), 0)
	if b.Ref() != ref {
		t.Errorf("slot not recycled: got %d, want %d", b.Ref(), ref)
	}
}

func TestHeapFreeBadRef(t *testing.T) {
	h := NewHeap(0)

	for _, ref := range []StringRef{NoString, 99} {
		if err := h.Free(ref); !errors.Is(err, ErrBadRef) {
			t.Errorf("Free(%d) error = %v, want ErrBadRef", ref, err)
		}
	}

	s, _ := h.allocString(KindLong, []byte("x"), 0)
	_ = h.Free(s.Ref())
	if err := h.Free(s.Ref()); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("double Free error = %v, want ErrInvariantViolation", err)
	}
}

func TestHeapLimit(t *testing.T) {
	h := NewHeap(stringHeaderSize + 4)

	if _, err := h.allocString(KindLong, []byte("abc"), 0); err != nil {
		t.Fatalf("alloc within limit: %v", err)
	}
	_, err := h.allocString(KindLong, []byte(""), 0)
	if !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("alloc over limit error = %v, want ErrAllocationFailure", err)
	}
	if st := h.Stats(); st.LongStrings != 1 || st.Bytes != stringHeaderSize+4 {
		t.Errorf("failed alloc changed stats: %+v", st)
	}
}

func TestHeapBucketAccounting(t *testing.T) {
	h := NewHeap(0)

	b, err := h.allocBuckets(16)
	if err != nil {
		t.Fatalf("allocBuckets: %v", err)
	}
	if len(b) != 16 {
		t.Errorf("len = %d, want 16", len(b))
	}
	if st := h.Stats(); st.BucketArrays != 1 || st.Bytes != 16*bucketSlotSize {
		t.Errorf("stats = %+v", st)
	}
	h.freeBuckets(b)
	if h.Outstanding() != 0 || h.Stats().Bytes != 0 {
		t.Errorf("after freeBuckets: outstanding %d, bytes %d", h.Outstanding(), h.Stats().Bytes)
	}
}

func TestHeapEach(t *testing.T) {
	h := NewHeap(0)
	a, _ := h.allocString(KindLong, []byte("a"), 0)
	b, _ := h.allocString(KindLong, []byte("b"), 0)
	c, _ := h.allocString(KindLong, []byte("c"), 0)
	_ = h.Free(b.Ref())

	var seen []StringRef
	h.Each(func(s *String) {
		seen = append(seen, s.Ref())
	})
	if len(seen) != 2 || seen[0] != a.Ref() || seen[1] != c.Ref() {
		t.Errorf("Each visited %v, want [%d %d]", seen, a.Ref(), c.Ref())
	}
}

func TestHeapResolveRejectsStaleValue(t *testing.T) {
	h := NewHeap(0)

	a, _ := h.allocString(KindLong, bytes.Repeat([]byte("a"), 41), 0)
	stale := FromString(a)
	if h.Resolve(stale) != a {
		t.Fatal("Resolve did not return the live object")
	}
	if err := h.Free(a.Ref()); err != nil {
		t.Fatalf("Free: %v", err)
	}

	b, _ := h.allocString(KindShort, []byte("hello"), 0)
	if b.Ref() != a.Ref() {
		t.Fatalf("slot not recycled: got %d, want %d", b.Ref(), a.Ref())
	}
	if s := h.Resolve(stale); s != nil {
		t.Errorf("stale Value resolved to %v %q", s.Kind(), s.String())
	}
	fresh := FromString(b)
	if fresh == stale {
		t.Error("recycled slot produced the same Value")
	}
	if h.Resolve(fresh) != b {
		t.Error("Resolve(fresh) did not return the new object")
	}
	if h.Resolve(Value(uint64(fresh)|stringLongBit)) != nil {
		t.Error("Resolve accepted a Value with the wrong kind")
	}
	if h.Resolve(Nil) != nil {
		t.Error("Resolve(Nil) returned an object")
	}
}

func TestHeapGenerationWraps(t *testing.T) {
	h := NewHeap(0)
	s, _ := h.allocString(KindLong, []byte("w"), 0)
	ref := s.Ref()
	for i := 0; i <= int(maxStringGen); i++ {
		_ = h.Free(ref)
		s, _ = h.allocString(KindLong, []byte("w"), 0)
	}
	if s.Ref() != ref || s.gen != 0 {
		t.Errorf("after %d reuses: ref %d gen %d, want ref %d gen 0", int(maxStringGen)+1, s.Ref(), s.gen, ref)
	}
	if h.Resolve(FromString(s)) != s {
		t.Error("wrapped generation does not resolve")
	}
}
