package ring

import (
	"fmt"
	"sync"

	"github.com/c360/shmbridge/errors"
)

// Ring is a bounded, lossy, first-in-first-out frame queue over a fixed
// pool of slots. Frames arriving faster than they are consumed silently
// overwrite the oldest unconsumed entry; the newest poolSize frames are
// always retained. Producers and consumers may run on different
// goroutines; all state is guarded by a single mutex so a consumer can
// never observe a half-written slot.
//
// All slots are allocated once at construction and reused for the life
// of the ring. No operation blocks or allocates.
type Ring struct {
	mu sync.Mutex

	// pool is the fixed slot arena; sizes and consumed are parallel
	// per-slot metadata.
	pool     [][]byte
	sizes    []int
	consumed []bool

	// producer is the next slot to be written; pending counts slots
	// holding data not yet consumed. The oldest unconsumed slot is
	// (producer - pending) mod poolSize.
	producer int
	pending  int

	poolSize int
	frameCap int

	stats    *Statistics
	metrics  *ringMetrics
	dropHook DropHook
}

// New creates a ring with poolSize slots of frameCapacity bytes each.
// The ring starts empty: pending 0, producer 0, every slot consumed.
func New(poolSize, frameCapacity int, options ...Option) (*Ring, error) {
	if poolSize <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("pool size %d", poolSize),
			"Ring", "New", "pool size validation")
	}
	if frameCapacity <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("frame capacity %d", frameCapacity),
			"Ring", "New", "frame capacity validation")
	}

	opts := applyOptions(options...)

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsLabel != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsLabel)
		if err != nil {
			return nil, errors.WrapTransient(err, "Ring", "New", "metrics registration")
		}
	}

	r := &Ring{
		pool:     make([][]byte, poolSize),
		sizes:    make([]int, poolSize),
		consumed: make([]bool, poolSize),
		poolSize: poolSize,
		frameCap: frameCapacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		dropHook: opts.dropHook,
	}
	for i := range r.pool {
		r.pool[i] = make([]byte, frameCapacity)
		r.consumed[i] = true
	}
	return r, nil
}

// Produce copies data into the next slot. A frame larger than the frame
// capacity is rejected with ErrOverCapacity and the ring is left
// unmodified. When the ring is full the oldest unconsumed entry is
// silently overwritten; that is retention policy, not an error.
func (r *Ring) Produce(data []byte) error {
	if len(data) > r.frameCap {
		r.stats.Reject()
		if r.metrics != nil {
			r.metrics.recordRejection()
		}
		return errors.WrapInvalid(errors.ErrOverCapacity, "Ring", "Produce",
			fmt.Sprintf("frame size %d exceeds capacity %d", len(data), r.frameCap))
	}

	var overwrittenSize int
	overwrite := false

	r.mu.Lock()
	if r.pending == r.poolSize {
		// Full: the producer slot is exactly the oldest entry and is
		// about to be replaced. pending saturates at poolSize.
		overwrite = true
		overwrittenSize = r.sizes[r.producer]
	} else {
		r.pending++
	}

	slot := r.pool[r.producer]
	copy(slot, data)
	r.sizes[r.producer] = len(data)
	r.consumed[r.producer] = false
	r.producer = (r.producer + 1) % r.poolSize
	pending := r.pending
	r.mu.Unlock()

	r.stats.Produce()
	r.stats.UpdatePending(pending)
	if overwrite {
		r.stats.Overwrite()
	}
	if r.metrics != nil {
		r.metrics.recordProduce(pending, r.poolSize, overwrite)
	}
	if overwrite && r.dropHook != nil {
		r.dropHook(overwrittenSize)
	}
	return nil
}

// Consume removes and returns the oldest unconsumed frame. The second
// return value is false when the ring is empty; an empty ring is a
// normal, non-blocking result. Delivery is at-most-once: a consumed
// slot can never be re-read.
//
// The returned slice is a view into the slot, valid until the producer
// has lapped the ring. Callers that hold frames across further produce
// calls must copy.
func (r *Ring) Consume() ([]byte, bool) {
	r.mu.Lock()
	if r.pending == 0 {
		r.mu.Unlock()
		return nil, false
	}

	idx := (r.producer - r.pending + r.poolSize) % r.poolSize
	if r.consumed[idx] {
		// Double-consumption guard: pending is authoritative, but a
		// slot already marked consumed must never be delivered twice.
		r.mu.Unlock()
		r.stats.GuardTrip()
		return nil, false
	}

	r.consumed[idx] = true
	r.pending--
	pending := r.pending
	frame := r.pool[idx][:r.sizes[idx]]
	r.mu.Unlock()

	r.stats.Consume()
	r.stats.UpdatePending(pending)
	if r.metrics != nil {
		r.metrics.recordConsume(pending, r.poolSize)
	}
	return frame, true
}

// ConsumeInto removes the oldest unconsumed frame and copies it into
// dst while still holding the ring lock, so the caller can never
// observe the slot being overwritten by a lapping producer. Returns
// the frame size and true, or 0 and false when the ring is empty.
// A dst shorter than the stored frame is reported as ErrCopyFault and
// the frame stays consumed; there is no redelivery.
func (r *Ring) ConsumeInto(dst []byte) (int, bool, error) {
	r.mu.Lock()
	if r.pending == 0 {
		r.mu.Unlock()
		return 0, false, nil
	}

	idx := (r.producer - r.pending + r.poolSize) % r.poolSize
	if r.consumed[idx] {
		r.mu.Unlock()
		r.stats.GuardTrip()
		return 0, false, nil
	}

	r.consumed[idx] = true
	r.pending--
	pending := r.pending
	size := r.sizes[idx]

	var err error
	if size > len(dst) {
		err = errors.WrapInvalid(errors.ErrCopyFault, "Ring", "ConsumeInto",
			fmt.Sprintf("destination %d bytes, frame %d bytes", len(dst), size))
	} else {
		copy(dst, r.pool[idx][:size])
	}
	r.mu.Unlock()

	r.stats.Consume()
	r.stats.UpdatePending(pending)
	if r.metrics != nil {
		r.metrics.recordConsume(pending, r.poolSize)
	}
	if err != nil {
		return 0, true, err
	}
	return size, true, nil
}

// Reset returns the ring to its start-up state: empty, producer at
// slot zero, every slot marked consumed.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.producer = 0
	r.pending = 0
	for i := range r.consumed {
		r.consumed[i] = true
		r.sizes[i] = 0
	}
	r.mu.Unlock()

	r.stats.UpdatePending(0)
	if r.metrics != nil {
		r.metrics.updatePending(0, r.poolSize)
	}
}

// Pending returns the number of frames awaiting consumption.
func (r *Ring) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// PoolSize returns the number of slots.
func (r *Ring) PoolSize() int {
	return r.poolSize
}

// FrameCapacity returns the maximum frame size in bytes.
func (r *Ring) FrameCapacity() int {
	return r.frameCap
}

// Stats returns the ring statistics (always collected).
func (r *Ring) Stats() *Statistics {
	return r.stats
}
