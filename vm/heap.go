package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: allocator and object registry for string objects
// ---------------------------------------------------------------------------

// bucketSlotSize is the accounted size of one bucket head.
const bucketSlotSize = 4

// HeapStats holds a point-in-time view of heap usage.
type HeapStats struct {
	ShortStrings int
	LongStrings  int
	BucketArrays int
	Bytes        int
	Allocs       uint64
	Frees        uint64
}

// Heap owns every String object in a VM. Objects live in an arena indexed by
// StringRef; freed slots are recycled. The arena doubles as the collector's
// object registry. Every free bumps the slot's generation so Values minted
// for the old object stop resolving. Heap does no locking; the owning VM
// serializes access.
type Heap struct {
	objects []*String   // index 0 is reserved for NoString
	gens    []uint16    // per-slot generation, bumped on every free
	free    []StringRef // recycled slots

	shortCount  int
	longCount   int
	bucketCount int
	bytes       int
	maxBytes    int // 0 means unlimited

	allocs uint64
	frees  uint64
}

// NewHeap creates a heap. A positive maxBytes caps the accounted size of all
// live objects and bucket arrays.
func NewHeap(maxBytes int) *Heap {
	return &Heap{
		objects:  make([]*String, 1, 64),
		gens:     make([]uint16, 1, 64),
		maxBytes: maxBytes,
	}
}

// reserve accounts for size bytes or fails without side effects.
func (h *Heap) reserve(size int) error {
	if h.maxBytes > 0 && h.bytes+size > h.maxBytes {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrAllocationFailure, size, h.bytes, h.maxBytes)
	}
	h.bytes += size
	h.allocs++
	return nil
}

func (h *Heap) release(size int) {
	h.bytes -= size
	h.frees++
}

// allocString creates a String holding a copy of payload and links it into
// the object registry.
func (h *Heap) allocString(kind StringKind, payload []byte, hash uint32) (*String, error) {
	size := stringHeaderSize + len(payload) + 1
	if err := h.reserve(size); err != nil {
		return nil, err
	}

	data := make([]byte, len(payload)+1)
	copy(data, payload)

	s := &String{
		data: data,
		hash: hash,
		kind: kind,
	}

	if n := len(h.free); n > 0 {
		s.ref = h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[s.ref] = s
	} else {
		s.ref = StringRef(len(h.objects))
		h.objects = append(h.objects, s)
		h.gens = append(h.gens, 0)
	}
	s.gen = h.gens[s.ref]

	if kind == KindShort {
		h.shortCount++
	} else {
		h.longCount++
	}
	return s, nil
}

// allocBuckets returns a zeroed bucket array of n heads.
func (h *Heap) allocBuckets(n int) ([]StringRef, error) {
	if err := h.reserve(n * bucketSlotSize); err != nil {
		return nil, err
	}
	h.bucketCount++
	return make([]StringRef, n), nil
}

func (h *Heap) freeBuckets(b []StringRef) {
	h.release(len(b) * bucketSlotSize)
	h.bucketCount--
}

// Get returns the String for ref, or nil if ref is not live.
func (h *Heap) Get(ref StringRef) *String {
	if ref == NoString || int(ref) >= len(h.objects) {
		return nil
	}
	return h.objects[ref]
}

// Resolve returns the String v refers to, or nil if v is not a string or the
// object it was minted for has been freed. A Value outlives its object only
// until the slot's generation wraps.
func (h *Heap) Resolve(v Value) *String {
	if !v.IsString() {
		return nil
	}
	s := h.Get(v.StringRef())
	if s == nil || s.gen != v.stringGen() || s.kind != v.StringKind() {
		return nil
	}
	return s
}

// Free releases a long string. Short strings belong to their StringTable and
// are reclaimed only by Teardown.
func (h *Heap) Free(ref StringRef) error {
	s := h.Get(ref)
	if s == nil {
		return fmt.Errorf("free %d: %w", ref, ErrBadRef)
	}
	if s.kind == KindShort {
		return fmt.Errorf("%w: free of interned string %d", ErrInvariantViolation, ref)
	}
	h.freeObject(s)
	return nil
}

// freeObject releases s whatever its kind. Only Teardown frees short strings.
func (h *Heap) freeObject(s *String) {
	h.objects[s.ref] = nil
	h.gens[s.ref] = (h.gens[s.ref] + 1) & maxStringGen
	h.free = append(h.free, s.ref)
	h.release(s.allocSize())

	if s.kind == KindShort {
		h.shortCount--
	} else {
		h.longCount--
	}
}

// Each calls fn for every live object in registry order. fn must not
// allocate or free.
func (h *Heap) Each(fn func(*String)) {
	for _, s := range h.objects[1:] {
		if s != nil {
			fn(s)
		}
	}
}

// Outstanding returns the number of live allocations: string objects plus
// bucket arrays.
func (h *Heap) Outstanding() int {
	return h.shortCount + h.longCount + h.bucketCount
}

// Stats returns current usage counters.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		ShortStrings: h.shortCount,
		LongStrings:  h.longCount,
		BucketArrays: h.bucketCount,
		Bytes:        h.bytes,
		Allocs:       h.allocs,
		Frees:        h.frees,
	}
}

// MaxBytes returns the configured limit, 0 if unlimited.
func (h *Heap) MaxBytes() int {
	return h.maxBytes
}
