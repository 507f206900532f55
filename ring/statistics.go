package ring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks ring activity. Always collected; Prometheus export
// is optional and layered on top via WithMetrics.
type Statistics struct {
	produces   int64
	consumes   int64
	overwrites int64
	rejections int64
	guardTrips int64

	mu         sync.RWMutex
	startTime  time.Time
	pending    int64
	maxPending int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Produce records a successful produce operation.
func (s *Statistics) Produce() {
	atomic.AddInt64(&s.produces, 1)
}

// Consume records a successful consume operation.
func (s *Statistics) Consume() {
	atomic.AddInt64(&s.consumes, 1)
}

// Overwrite records the silent loss of the oldest frame to a new one.
func (s *Statistics) Overwrite() {
	atomic.AddInt64(&s.overwrites, 1)
}

// Reject records a frame refused for exceeding the frame capacity.
func (s *Statistics) Reject() {
	atomic.AddInt64(&s.rejections, 1)
}

// GuardTrip records the double-consumption guard firing.
func (s *Statistics) GuardTrip() {
	atomic.AddInt64(&s.guardTrips, 1)
}

// UpdatePending updates the current pending count and its high-water mark.
func (s *Statistics) UpdatePending(pending int) {
	s.mu.Lock()
	s.pending = int64(pending)
	if int64(pending) > s.maxPending {
		s.maxPending = int64(pending)
	}
	s.mu.Unlock()
}

// Produces returns the total number of successful produce operations.
func (s *Statistics) Produces() int64 {
	return atomic.LoadInt64(&s.produces)
}

// Consumes returns the total number of successful consume operations.
func (s *Statistics) Consumes() int64 {
	return atomic.LoadInt64(&s.consumes)
}

// Overwrites returns the total number of frames lost to overwrite.
func (s *Statistics) Overwrites() int64 {
	return atomic.LoadInt64(&s.overwrites)
}

// Rejections returns the total number of over-capacity rejections.
func (s *Statistics) Rejections() int64 {
	return atomic.LoadInt64(&s.rejections)
}

// GuardTrips returns how often the double-consumption guard fired.
func (s *Statistics) GuardTrips() int64 {
	return atomic.LoadInt64(&s.guardTrips)
}

// Pending returns the pending count as last recorded.
func (s *Statistics) Pending() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// MaxPending returns the pending high-water mark.
func (s *Statistics) MaxPending() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxPending
}

// DropRate returns the fraction of produced frames lost to overwrite
// (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	produces := s.Produces()
	if produces == 0 {
		return 0.0
	}
	return float64(s.Overwrites()) / float64(produces)
}

// Uptime returns how long the ring has been collecting statistics.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Summary is a point-in-time snapshot of all statistics.
type Summary struct {
	Produces   int64         `json:"produces"`
	Consumes   int64         `json:"consumes"`
	Overwrites int64         `json:"overwrites"`
	Rejections int64         `json:"rejections"`
	GuardTrips int64         `json:"guard_trips"`
	Pending    int64         `json:"pending"`
	MaxPending int64         `json:"max_pending"`
	DropRate   float64       `json:"drop_rate"`
	Uptime     time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() Summary {
	return Summary{
		Produces:   s.Produces(),
		Consumes:   s.Consumes(),
		Overwrites: s.Overwrites(),
		Rejections: s.Rejections(),
		GuardTrips: s.GuardTrips(),
		Pending:    s.Pending(),
		MaxPending: s.MaxPending(),
		DropRate:   s.DropRate(),
		Uptime:     s.Uptime(),
	}
}
