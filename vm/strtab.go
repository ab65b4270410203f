package vm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// StringTable: intern pool for short strings
// ---------------------------------------------------------------------------

// DefaultTableCapacity is the initial bucket count used when none is configured.
const DefaultTableCapacity = 32

// PrintFunc receives diagnostic output.
type PrintFunc func(format string, args ...any)

// TableStats describes bucket occupancy.
type TableStats struct {
	Capacity     int
	Entries      int
	EmptyBuckets int
	LongestChain int
	Resizes      int
}

// StringTable is a chained hash table holding exactly one String per short
// content. It owns every short String it reaches.
//
// The table does no locking. Callers must not mutate it while a collector
// traversal is open; BeginTraversal marks that section and mutations during
// it fail with ErrTraversalActive.
type StringTable struct {
	heap    *Heap
	seed    uint32
	buckets []StringRef
	nuse    int

	traversing bool
	tornDown   bool
	resizes    int

	log commonlog.Logger
}

// NewStringTable creates a table with the given initial capacity, allocating
// its bucket array from heap. seed is supplied by the host runtime.
func NewStringTable(heap *Heap, seed uint32, capacity int) (*StringTable, error) {
	if capacity < 1 {
		capacity = 1
	}
	buckets, err := heap.allocBuckets(capacity)
	if err != nil {
		return nil, fmt.Errorf("string table: %w", err)
	}
	return &StringTable{
		heap:    heap,
		seed:    seed,
		buckets: buckets,
		log:     commonlog.GetLogger("strtab.table"),
	}, nil
}

// Seed returns the hash seed.
func (t *StringTable) Seed() uint32 {
	return t.seed
}

// Len returns the number of interned strings.
func (t *StringTable) Len() int {
	return t.nuse
}

// Cap returns the number of buckets.
func (t *StringTable) Cap() int {
	return len(t.buckets)
}

// Get returns the String for ref.
func (t *StringTable) Get(ref StringRef) *String {
	return t.heap.Get(ref)
}

func (t *StringTable) bucketIndex(h uint32) int {
	return int(h % uint32(len(t.buckets)))
}

// Lookup returns the interned string with content b, if any. Lookup on a torn
// down table panics.
func (t *StringTable) Lookup(b []byte) (StringRef, bool) {
	if t.tornDown {
		panic(fmt.Errorf("lookup: %w", ErrTornDown))
	}
	s := t.find(b, HashBytes(t.seed, b))
	if s == nil {
		return NoString, false
	}
	return s.ref, true
}

func (t *StringTable) find(b []byte, h uint32) *String {
	for ref := t.buckets[t.bucketIndex(h)]; ref != NoString; {
		s := t.heap.objects[ref]
		if s.hash == h && s.Len() == len(b) && bytes.Equal(s.Bytes(), b) {
			return s
		}
		ref = s.next
	}
	return nil
}

// Intern returns the unique short string with content b, creating it on a
// miss. b must be at most MaxShortLen bytes.
func (t *StringTable) Intern(b []byte) (StringRef, error) {
	if t.tornDown {
		return NoString, fmt.Errorf("intern: %w", ErrTornDown)
	}
	if len(b) > MaxShortLen {
		return NoString, fmt.Errorf("%w: intern of %d bytes exceeds short limit %d",
			ErrInvariantViolation, len(b), MaxShortLen)
	}

	h := HashBytes(t.seed, b)
	if s := t.find(b, h); s != nil {
		return s.ref, nil
	}

	s, err := t.createShort(b, h)
	if err != nil {
		return NoString, fmt.Errorf("intern: %w", err)
	}
	return s.ref, nil
}

// createShort is the only constructor of short strings.
func (t *StringTable) createShort(b []byte, h uint32) (*String, error) {
	if t.traversing {
		return nil, ErrTraversalActive
	}
	if t.nuse >= len(t.buckets) {
		if err := t.Resize(len(t.buckets) * 2); err != nil {
			return nil, err
		}
	}

	s, err := t.heap.allocString(KindShort, b, h)
	if err != nil {
		return nil, err
	}
	i := t.bucketIndex(h)
	s.next = t.buckets[i]
	t.buckets[i] = s.ref
	t.nuse++
	return s, nil
}

// CreateLong creates a new long string. Every call returns a distinct object.
func (t *StringTable) CreateLong(b []byte) (StringRef, error) {
	if t.tornDown {
		return NoString, fmt.Errorf("create long: %w", ErrTornDown)
	}
	s, err := t.heap.allocString(KindLong, b, HashBytes(t.seed, b))
	if err != nil {
		return NoString, fmt.Errorf("create long: %w", err)
	}
	return s.ref, nil
}

// NewString interns b if it is short and otherwise creates a long string.
func (t *StringTable) NewString(b []byte) (StringRef, error) {
	if len(b) <= MaxShortLen {
		return t.Intern(b)
	}
	return t.CreateLong(b)
}

// NewCString is NewString over the bytes of b before its first zero byte.
func (t *StringTable) NewCString(b []byte) (StringRef, error) {
	return t.NewString(segment(b))
}

// Resize rehashes every entry into a new array of newCapacity buckets using
// the cached hashes. Shrinking requires buckets at index newCapacity and
// above to be empty already.
func (t *StringTable) Resize(newCapacity int) error {
	if t.tornDown {
		return fmt.Errorf("resize: %w", ErrTornDown)
	}
	if t.traversing {
		return fmt.Errorf("resize: %w", ErrTraversalActive)
	}
	if newCapacity < 1 {
		return fmt.Errorf("%w: resize to capacity %d", ErrInvariantViolation, newCapacity)
	}
	if newCapacity < len(t.buckets) {
		for i, ref := range t.buckets[newCapacity:] {
			if ref != NoString {
				return fmt.Errorf("%w: shrink to %d would discard bucket %d",
					ErrInvariantViolation, newCapacity, newCapacity+i)
			}
		}
	}

	buckets, err := t.heap.allocBuckets(newCapacity)
	if err != nil {
		return fmt.Errorf("resize to %d: %w", newCapacity, err)
	}

	n := uint32(newCapacity)
	for _, ref := range t.buckets {
		for ref != NoString {
			s := t.heap.objects[ref]
			next := s.next
			i := s.hash % n
			s.next = buckets[i]
			buckets[i] = ref
			ref = next
		}
	}

	old := len(t.buckets)
	t.heap.freeBuckets(t.buckets)
	t.buckets = buckets
	t.resizes++
	t.log.Debugf("string table resized %d -> %d (%d entries)", old, newCapacity, t.nuse)
	return nil
}

// Teardown frees every interned string and the bucket array. The table is
// unusable afterwards.
func (t *StringTable) Teardown() error {
	if t.tornDown {
		return fmt.Errorf("teardown: %w", ErrTornDown)
	}
	if t.traversing {
		return fmt.Errorf("teardown: %w", ErrTraversalActive)
	}

	// Each head is cleared before its chain is walked, so a broken chain
	// never leaves the table pointing at freed slots.
	var errs []error
	freed := 0
	for i, ref := range t.buckets {
		t.buckets[i] = NoString
		for ref != NoString {
			obj := t.heap.Get(ref)
			if obj == nil {
				errs = append(errs, fmt.Errorf("teardown bucket %d: %w", i, ErrBadRef))
				break
			}
			ref = obj.next
			t.heap.freeObject(obj)
			freed++
		}
	}

	t.heap.freeBuckets(t.buckets)
	t.buckets = nil
	t.nuse = 0
	t.tornDown = true
	t.log.Infof("string table torn down, %d strings freed", freed)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsTornDown reports whether Teardown has run.
func (t *StringTable) IsTornDown() bool {
	return t.tornDown
}

// Each calls fn for every interned string in bucket order until fn returns
// false.
func (t *StringTable) Each(fn func(*String) bool) {
	for _, ref := range t.buckets {
		for ref != NoString {
			s := t.heap.objects[ref]
			if !fn(s) {
				return
			}
			ref = s.next
		}
	}
}

// BeginTraversal opens the collector's exclusive section. Inserts, resizes
// and teardown fail until EndTraversal.
func (t *StringTable) BeginTraversal() error {
	if t.tornDown {
		return fmt.Errorf("traverse: %w", ErrTornDown)
	}
	if t.traversing {
		return fmt.Errorf("traverse: %w", ErrTraversalActive)
	}
	t.traversing = true
	return nil
}

// EndTraversal closes the section opened by BeginTraversal.
func (t *StringTable) EndTraversal() {
	t.traversing = false
}

// Traversing reports whether a collector traversal is open.
func (t *StringTable) Traversing() bool {
	return t.traversing
}

// Stats returns occupancy figures.
func (t *StringTable) Stats() TableStats {
	stats := TableStats{
		Capacity: len(t.buckets),
		Entries:  t.nuse,
		Resizes:  t.resizes,
	}
	for _, ref := range t.buckets {
		chain := 0
		for ; ref != NoString; ref = t.heap.objects[ref].next {
			chain++
		}
		if chain == 0 {
			stats.EmptyBuckets++
		}
		if chain > stats.LongestChain {
			stats.LongestChain = chain
		}
	}
	return stats
}

// DebugDump writes the table size followed by every entry and its length.
func (t *StringTable) DebugDump(out PrintFunc) {
	out("string table dump: size: %d, nuse: %d", len(t.buckets), t.nuse)
	t.Each(func(s *String) bool {
		out("%s [%d]", s.Bytes(), s.Len())
		return true
	})
}
