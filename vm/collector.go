package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Collector: stop-the-world mark/sweep of long strings
// ---------------------------------------------------------------------------

// CollectStats holds statistics from a single collection.
type CollectStats struct {
	Roots         int
	ShortStrings  int
	LongMarked    int
	LongSwept     int
	BytesFreed    int
	SweepDuration time.Duration
	Timestamp     time.Time
}

// Collector reclaims long strings that are no longer reachable from the VM
// root set. Short strings belong to the string table and are never swept;
// the collector only traverses their bucket array inside the table's
// exclusive section.
type Collector struct {
	vm       *VM
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	collectCount atomic.Uint64
	lastStats    atomic.Value // *CollectStats
}

// DefaultGCInterval is the default period of the background collector.
const DefaultGCInterval = 30 * time.Second

// NewCollector creates a collector for vm. A non-positive interval selects
// DefaultGCInterval.
func NewCollector(vm *VM, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	gc := &Collector{
		vm:       vm,
		interval: interval,
	}
	gc.enabled.Store(true)
	return gc
}

// Start begins the periodic collection goroutine. Only one loop runs no
// matter how often Start is called.
func (gc *Collector) Start() {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.stop != nil {
		return
	}

	gc.stop = make(chan struct{})
	gc.stopped = make(chan struct{})

	// The loop gets its own copies; Stop nils the fields.
	go gc.loop(gc.stop, gc.stopped)
}

// Stop halts the periodic goroutine and waits for it to exit. Safe to call
// on a collector that was never started.
func (gc *Collector) Stop() {
	gc.mu.Lock()
	stopCh := gc.stop
	stoppedCh := gc.stopped
	gc.stop = nil
	gc.stopped = nil
	gc.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled toggles periodic collection without stopping the goroutine.
func (gc *Collector) SetEnabled(enabled bool) {
	gc.enabled.Store(enabled)
}

// IsEnabled returns whether periodic collection is enabled.
func (gc *Collector) IsEnabled() bool {
	return gc.enabled.Load()
}

// Interval returns the collection period.
func (gc *Collector) Interval() time.Duration {
	return gc.interval
}

// CollectCount returns the number of completed collections.
func (gc *Collector) CollectCount() uint64 {
	return gc.collectCount.Load()
}

// LastStats returns statistics from the most recent collection, or nil.
func (gc *Collector) LastStats() *CollectStats {
	v := gc.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*CollectStats)
}

// CollectNow runs one collection regardless of the timer.
func (gc *Collector) CollectNow() (*CollectStats, error) {
	gc.vm.mu.Lock()
	defer gc.vm.mu.Unlock()
	return gc.collect()
}

func (gc *Collector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !gc.enabled.Load() {
				continue
			}
			if _, err := gc.CollectNow(); err != nil {
				gc.vm.log.Warningf("collection failed: %v", err)
			}
		}
	}
}

// collect marks from the root set and sweeps unreachable long strings.
// The caller holds vm.mu.
func (gc *Collector) collect() (*CollectStats, error) {
	start := time.Now()
	stats := &CollectStats{
		Timestamp: start,
		Roots:     len(gc.vm.roots),
	}
	heap := gc.vm.heap
	table := gc.vm.strings

	// The reachable set is rebuilt from scratch on every pass.
	marked := make(map[StringRef]struct{}, len(gc.vm.roots))
	for v := range gc.vm.roots {
		if v.IsLongString() {
			marked[v.StringRef()] = struct{}{}
		}
	}

	if err := table.BeginTraversal(); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	table.Each(func(s *String) bool {
		stats.ShortStrings++
		return true
	})
	table.EndTraversal()

	var dead []StringRef
	heap.Each(func(s *String) {
		if s.kind != KindLong {
			return
		}
		if _, ok := marked[s.ref]; ok {
			stats.LongMarked++
			return
		}
		dead = append(dead, s.ref)
		stats.BytesFreed += s.allocSize()
	})
	for _, ref := range dead {
		if err := heap.Free(ref); err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
	}
	stats.LongSwept = len(dead)
	stats.SweepDuration = time.Since(start)

	gc.collectCount.Add(1)
	gc.lastStats.Store(stats)
	gc.vm.log.Debugf("collection: %d roots, %d short, %d long kept, %d long swept",
		stats.Roots, stats.ShortStrings, stats.LongMarked, stats.LongSwept)
	return stats, nil
}
