package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/shmbridge/errors"
)

const (
	defaultTxSlots   = 16
	defaultSlotSize  = 128
	defaultQueueSize = 64
)

// LoopbackConfig sizes the in-process transport.
type LoopbackConfig struct {
	TxSlots   int  // transmit buffer pool size, default 16
	SlotSize  int  // transmit buffer capacity in bytes, default 128
	QueueSize int  // inbound delivery queue depth, default 64
	Echo      bool // reflect every sent frame back as an inbound frame
}

// inboundFrame is one frame queued for handler delivery.
type inboundFrame struct {
	instanceID uint8
	channelID  uint8
	data       []byte
}

// Loopback is an in-process Transport used by tests and by deployments
// without a remote core. Sent frames are dropped, or echoed back on the
// same channel when Echo is set. Its transmit pool is a fixed freelist,
// so acquire pressure and exhaustion behave like a real shared medium.
type Loopback struct {
	config LoopbackConfig
	logger *slog.Logger

	freelist chan []byte
	inbound  chan inboundFrame

	mu      sync.Mutex
	handler ReceiveHandler
	started bool
	ready   bool
	done    chan struct{}
}

// NewLoopback creates an in-process transport.
func NewLoopback(config LoopbackConfig, logger *slog.Logger) *Loopback {
	if config.TxSlots <= 0 {
		config.TxSlots = defaultTxSlots
	}
	if config.SlotSize <= 0 {
		config.SlotSize = defaultSlotSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	freelist := make(chan []byte, config.TxSlots)
	for i := 0; i < config.TxSlots; i++ {
		freelist <- make([]byte, config.SlotSize)
	}

	return &Loopback{
		config:   config,
		logger:   logger.With("component", "loopback"),
		freelist: freelist,
		inbound:  make(chan inboundFrame, config.QueueSize),
	}
}

// SetReceiveHandler registers the inbound frame handler.
func (l *Loopback) SetReceiveHandler(handler ReceiveHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

// Start spins up the delivery loop.
func (l *Loopback) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Loopback", "Start", "startup")
	}
	l.started = true
	l.ready = true
	l.done = make(chan struct{})

	go l.deliverLoop(l.done)

	l.logger.Info("loopback transport started",
		"tx_slots", l.config.TxSlots,
		"echo", l.config.Echo)
	return nil
}

// Stop drains the delivery loop, waiting up to timeout.
func (l *Loopback) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Loopback", "Stop", "shutdown")
	}
	l.started = false
	l.ready = false
	done := l.done
	// Closed under the lock so Send cannot race an enqueue against it.
	close(l.inbound)
	l.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("delivery loop did not drain within %s", timeout),
			"Loopback", "Stop", "drain")
	}
}

// Ready reports whether the transport accepts traffic.
func (l *Loopback) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// AcquireBuffer takes a transmit buffer from the freelist.
func (l *Loopback) AcquireBuffer(instanceID, channelID uint8, size int) ([]byte, error) {
	if size > l.config.SlotSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("requested %d bytes, slot capacity %d", size, l.config.SlotSize),
			"Loopback", "AcquireBuffer", "size check")
	}
	select {
	case buf := <-l.freelist:
		return buf[:size], nil
	default:
		return nil, errors.WrapTransient(errors.ErrTransportExhausted,
			"Loopback", "AcquireBuffer",
			fmt.Sprintf("instance %d channel %d", instanceID, channelID))
	}
}

// ReleaseBuffer returns an unsent buffer to the freelist.
func (l *Loopback) ReleaseBuffer(instanceID, channelID uint8, buf []byte) error {
	l.recycle(buf)
	return nil
}

// Send consumes the buffer. With Echo set the frame is queued back as
// inbound on the same channel; otherwise it is dropped on the floor.
func (l *Loopback) Send(instanceID, channelID uint8, buf []byte) error {
	l.mu.Lock()
	if !l.ready {
		l.mu.Unlock()
		l.recycle(buf)
		return errors.WrapTransient(errors.ErrTransportNotReady, "Loopback", "Send",
			fmt.Sprintf("instance %d channel %d", instanceID, channelID))
	}

	if l.config.Echo {
		// Queue a copy so the transmit buffer can be recycled now.
		data := make([]byte, len(buf))
		copy(data, buf)
		select {
		case l.inbound <- inboundFrame{instanceID: instanceID, channelID: channelID, data: data}:
		default:
			l.logger.Warn("echo queue full, frame dropped",
				"instance_id", instanceID,
				"channel_id", channelID)
		}
	}
	l.mu.Unlock()

	l.recycle(buf)
	return nil
}

// Inject queues an inbound frame as if it arrived from the remote peer.
// Tests use it to drive the receive path without Echo.
func (l *Loopback) Inject(instanceID, channelID uint8, data []byte) {
	frame := inboundFrame{instanceID: instanceID, channelID: channelID}
	frame.data = make([]byte, len(data))
	copy(frame.data, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	select {
	case l.inbound <- frame:
	default:
		l.logger.Warn("inject queue full, frame dropped")
	}
}

// FreeSlots reports how many transmit buffers remain in the pool.
func (l *Loopback) FreeSlots() int {
	return len(l.freelist)
}

// deliverLoop invokes the registered handler for each inbound frame.
// This goroutine is the asynchronous producer context for the bridge.
func (l *Loopback) deliverLoop(done chan struct{}) {
	defer close(done)
	for frame := range l.inbound {
		l.mu.Lock()
		handler := l.handler
		l.mu.Unlock()
		if handler != nil {
			handler(frame.instanceID, frame.channelID, frame.data)
		}
	}
}

// recycle returns a buffer to the freelist at full capacity.
func (l *Loopback) recycle(buf []byte) {
	select {
	case l.freelist <- buf[:cap(buf)]:
	default:
		// Foreign buffer handed back; the pool is already full.
		l.logger.Warn("discarding buffer not from the pool")
	}
}
