package vm

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// Config holds the knobs a host runtime sets when creating a VM.
type Config struct {
	// Seed fixes the string hash seed. When nil the VM derives one from its
	// random session ID.
	Seed *uint32

	// TableCapacity is the initial bucket count of the string table.
	TableCapacity int

	// MaxHeapBytes caps heap usage; 0 means unlimited.
	MaxHeapBytes int

	// GCInterval is the period of the background collector. GCEnabled turns
	// the background loop on; CollectNow works either way.
	GCInterval time.Duration
	GCEnabled  bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		TableCapacity: DefaultTableCapacity,
		GCInterval:    DefaultGCInterval,
	}
}

// VM is the explicit runtime context threaded through every string
// operation. It owns the heap, the string table and the collector.
//
// All exported methods lock mu, the single exclusion point between the
// mutator and the collector.
type VM struct {
	mu sync.Mutex

	id      uuid.UUID
	seed    uint32
	heap    *Heap
	strings *StringTable
	gc      *Collector

	// roots holds retained Values with a reference count.
	roots map[Value]int

	shutdown bool
	log      commonlog.Logger
}

// NewVM creates a VM from cfg.
func NewVM(cfg Config) (*VM, error) {
	if cfg.TableCapacity <= 0 {
		cfg.TableCapacity = DefaultTableCapacity
	}

	id := uuid.New()
	seed := binary.LittleEndian.Uint32(id[:4])
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	heap := NewHeap(cfg.MaxHeapBytes)
	strings, err := NewStringTable(heap, seed, cfg.TableCapacity)
	if err != nil {
		return nil, fmt.Errorf("new vm: %w", err)
	}

	vm := &VM{
		id:      id,
		seed:    seed,
		heap:    heap,
		strings: strings,
		roots:   make(map[Value]int),
		log:     commonlog.GetLogger("strtab.vm"),
	}
	vm.gc = NewCollector(vm, cfg.GCInterval)
	if cfg.GCEnabled {
		vm.gc.Start()
	}

	vm.log.Debugf("vm %s created (seed %#x, capacity %d)", id, seed, cfg.TableCapacity)
	return vm, nil
}

// ID returns the VM's session identifier.
func (vm *VM) ID() uuid.UUID {
	return vm.id
}

// Seed returns the string hash seed.
func (vm *VM) Seed() uint32 {
	return vm.seed
}

// Strings returns the string table. Callers using it directly take over the
// VM's obligation not to mutate it during a collection.
func (vm *VM) Strings() *StringTable {
	return vm.strings
}

// Heap returns the VM heap.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// Collector returns the VM collector.
func (vm *VM) Collector() *Collector {
	return vm.gc
}

// ---------------------------------------------------------------------------
// String creation
// ---------------------------------------------------------------------------

// NewString returns a string Value for b. Short contents are interned. A
// long result comes back retained once, so the collector cannot reclaim it
// before the caller sees it; Release it when the caller drops it.
func (vm *VM) NewString(b []byte) (Value, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.newString(vm.strings.NewString(b))
}

// NewCString returns a string Value for the bytes of b before its first zero.
// Long results are retained as with NewString.
func (vm *VM) NewCString(b []byte) (Value, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.newString(vm.strings.NewCString(b))
}

func (vm *VM) newString(ref StringRef, err error) (Value, error) {
	if err != nil {
		return Nil, err
	}
	v := FromString(vm.heap.Get(ref))
	if v.IsLongString() {
		vm.roots[v]++
	}
	return v, nil
}

// StringOf returns the String a Value refers to, or nil if v is not a live
// string.
func (vm *VM) StringOf(v Value) *String {
	if !v.IsString() {
		return nil
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.heap.Resolve(v)
}

// Equal reports whether a and b are equal. Short strings compare by
// identity; long strings by content.
func (vm *VM) Equal(a, b Value) bool {
	if a == b {
		return true
	}
	if !a.IsLongString() || !b.IsLongString() {
		return false
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	sa, sb := vm.heap.Resolve(a), vm.heap.Resolve(b)
	return sa != nil && sb != nil && ContentEqual(sa, sb)
}

// Compare orders two string Values byte-wise.
func (vm *VM) Compare(a, b Value) (int, error) {
	if !a.IsString() || !b.IsString() {
		return 0, fmt.Errorf("%w: compare of non-string values", ErrInvariantViolation)
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	sa, sb := vm.heap.Resolve(a), vm.heap.Resolve(b)
	if sa == nil || sb == nil {
		return 0, fmt.Errorf("compare: %w", ErrBadRef)
	}
	return Compare(sa, sb), nil
}

// ---------------------------------------------------------------------------
// Reserved words
// ---------------------------------------------------------------------------

// ReserveWords interns each word and marks it with its 1-based position in
// words. Words must be short.
func (vm *VM) ReserveWords(words []string) error {
	if len(words) > 255 {
		return fmt.Errorf("%w: %d reserved words, at most 255", ErrInvariantViolation, len(words))
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()

	for i, w := range words {
		ref, err := vm.strings.Intern([]byte(w))
		if err != nil {
			return fmt.Errorf("reserve %q: %w", w, err)
		}
		vm.heap.Get(ref).extra = uint8(i + 1)
	}
	return nil
}

// ReservedIndex returns the 0-based reserved word index of v.
func (vm *VM) ReservedIndex(v Value) (int, bool) {
	if !v.IsShortString() {
		return 0, false
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	s := vm.heap.Resolve(v)
	if s == nil || s.extra == 0 {
		return 0, false
	}
	return int(s.extra) - 1, true
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// Retain adds one more hold on a live long string. Short strings are never
// collected and stale Values cannot be revived, so both are ignored.
func (vm *VM) Retain(v Value) {
	if !v.IsLongString() {
		return
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.heap.Resolve(v) != nil {
		vm.roots[v]++
	}
}

// Release drops one retain of v.
func (vm *VM) Release(v Value) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if n := vm.roots[v]; n > 1 {
		vm.roots[v] = n - 1
	} else {
		delete(vm.roots, v)
	}
}

// RootCount returns the number of distinct retained Values.
func (vm *VM) RootCount() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.roots)
}

// ---------------------------------------------------------------------------
// Diagnostics and lifecycle
// ---------------------------------------------------------------------------

// DebugDump writes the string table through out, or through the VM logger
// at info level when out is nil.
func (vm *VM) DebugDump(out PrintFunc) {
	if out == nil {
		out = vm.log.Infof
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.shutdown {
		return
	}
	vm.strings.DebugDump(out)
}

// SaveImage encodes the interned strings as a CBOR string image.
func (vm *VM) SaveImage() ([]byte, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.shutdown {
		return nil, fmt.Errorf("save image: %w", ErrTornDown)
	}
	return MarshalStringImage(vm.strings.Snapshot())
}

// LoadImage interns every string recorded in a CBOR string image.
func (vm *VM) LoadImage(data []byte) error {
	img, err := UnmarshalStringImage(data)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.strings.Restore(img)
}

// Collect runs a collection immediately.
func (vm *VM) Collect() (*CollectStats, error) {
	return vm.gc.CollectNow()
}

// Shutdown stops the collector, tears down the string table and frees the
// remaining long strings. Calling it again is a no-op.
func (vm *VM) Shutdown() error {
	vm.gc.Stop()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.shutdown {
		return nil
	}
	vm.shutdown = true
	vm.roots = make(map[Value]int)
	if err := vm.strings.Teardown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	var long []StringRef
	vm.heap.Each(func(s *String) {
		long = append(long, s.ref)
	})
	for _, ref := range long {
		if err := vm.heap.Free(ref); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	vm.log.Infof("vm %s shut down, %d long strings freed", vm.id, len(long))
	return nil
}
