package bridge

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/c360/shmbridge/channel"
	"github.com/c360/shmbridge/errors"
)

// sizePrefixLen is the length of the big-endian frame size prefix
// prepended on channels configured with PrependSize.
const sizePrefixLen = 4

// Handle is an open descriptor on one channel, the Go face of
// <root>/<instance>/<channel>. Reads drain the channel's ring one frame
// per call and never block; writes truncate to the channel's frame
// capacity and hand the frame to the transport.
//
// A Handle serializes its own reads, so each open handle is one
// consumer. Opening several handles on the same channel shares the ring
// and splits the frame stream between them.
type Handle struct {
	bridge  *Bridge
	binding *channel.Binding

	mu      sync.Mutex
	scratch []byte
	closed  bool
}

// Open resolves a channel by name and returns a handle on it.
func (b *Bridge) Open(instanceName, channelName string) (*Handle, error) {
	binding, err := b.registry.Lookup(instanceName, channelName)
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "Open",
			fmt.Sprintf("%s/%s", instanceName, channelName))
	}

	return &Handle{
		bridge:  b,
		binding: binding,
		scratch: make([]byte, binding.Ring.FrameCapacity()),
	}, nil
}

// Path returns the handle's external identity.
func (h *Handle) Path() string {
	return h.binding.Path()
}

// Read drains the next pending frame into dst and returns the number of
// bytes written. An empty ring returns (0, nil) without blocking. On
// channels with the size prefix enabled the payload is preceded by a
// 4-byte big-endian frame length, and dst must hold prefix plus
// payload.
//
// A dst too small for the frame returns ErrCopyFault and the frame is
// lost: it was already taken from the ring and is not redelivered.
func (h *Handle) Read(dst []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, errors.WrapInvalid(errors.ErrHandleClosed, "Handle", "Read", h.binding.Label())
	}

	n, ok, err := h.binding.Ring.ConsumeInto(h.scratch)
	if !ok {
		return 0, nil
	}
	if err != nil {
		// Scratch spans a full frame, so this is a ring-level fault.
		return 0, errors.Wrap(err, "Handle", "Read", h.binding.Label())
	}

	need := n
	offset := 0
	if h.binding.PrependSize {
		need += sizePrefixLen
		offset = sizePrefixLen
	}
	if len(dst) < need {
		return 0, errors.WrapInvalid(errors.ErrCopyFault, "Handle", "Read",
			fmt.Sprintf("%s: frame needs %d bytes, destination holds %d",
				h.binding.Label(), need, len(dst)))
	}

	if h.binding.PrependSize {
		binary.BigEndian.PutUint32(dst[:sizePrefixLen], uint32(n))
	}
	copy(dst[offset:need], h.scratch[:n])

	if h.bridge.core != nil {
		h.bridge.core.FramesConsumed.WithLabelValues(
			h.binding.InstanceName, h.binding.ChannelName).Inc()
	}
	return need, nil
}

// Write truncates data to the channel's frame capacity and transmits
// it, returning the number of bytes actually sent. A zero return with
// nil error means data was empty.
func (h *Handle) Write(data []byte) (int, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, errors.WrapInvalid(errors.ErrHandleClosed, "Handle", "Write", h.binding.Label())
	}
	h.mu.Unlock()

	n := len(data)
	if capLimit := h.binding.Ring.FrameCapacity(); n > capLimit {
		n = capLimit
	}

	buf, err := h.bridge.transport.AcquireBuffer(h.binding.InstanceID, h.binding.ChannelID, n)
	if err != nil {
		if h.bridge.core != nil {
			h.bridge.core.AcquireFailures.Inc()
		}
		return 0, errors.Wrap(err, "Handle", "Write", h.binding.Label())
	}

	copy(buf, data[:n])

	// Send consumes the buffer on every path; no release here.
	if err := h.bridge.transport.Send(h.binding.InstanceID, h.binding.ChannelID, buf); err != nil {
		if h.bridge.core != nil {
			h.bridge.core.TransportSendErrs.Inc()
		}
		return 0, errors.Wrap(err, "Handle", "Write", h.binding.Label())
	}

	if h.bridge.core != nil {
		h.bridge.core.FramesSent.WithLabelValues(
			h.binding.InstanceName, h.binding.ChannelName).Inc()
		h.bridge.core.BytesSent.WithLabelValues(
			h.binding.InstanceName, h.binding.ChannelName).Add(float64(n))
	}
	return n, nil
}

// Pending reports frames waiting in the channel's ring.
func (h *Handle) Pending() int {
	return h.binding.Ring.Pending()
}

// Close invalidates the handle. Frames already in the ring stay there
// for other handles on the same channel.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.WrapInvalid(errors.ErrHandleClosed, "Handle", "Close", h.binding.Label())
	}
	h.closed = true
	return nil
}
