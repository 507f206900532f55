// Package transport defines the boundary between the bridge and the
// shared medium that carries frames between cores.
//
// The bridge never touches the medium directly: it acquires a transmit
// buffer, fills it, and hands it back through Send, and it receives
// inbound frames through a registered handler invoked from the
// transport's own delivery context. Implementations own buffer
// lifetime; the bridge guarantees every acquired buffer is either sent
// or released, exactly once.
package transport

import (
	"context"
	"time"
)

// ReceiveHandler is invoked by the transport for each inbound frame.
// The data slice is only valid for the duration of the call; the
// handler must copy anything it keeps.
type ReceiveHandler func(instanceID, channelID uint8, data []byte)

// Transport carries frames to and from a remote peer.
//
// AcquireBuffer hands out a transmit buffer of at least the requested
// size, or errors.ErrTransportExhausted when the pool is empty. A
// buffer passed to Send is consumed by the transport; ReleaseBuffer
// returns an acquired buffer that will not be sent.
type Transport interface {
	// Start brings the transport up. The context bounds startup only.
	Start(ctx context.Context) error

	// Stop tears the transport down, waiting up to timeout for
	// in-flight deliveries to drain.
	Stop(timeout time.Duration) error

	// Ready reports whether the remote peer is reachable.
	Ready() bool

	// AcquireBuffer obtains a transmit buffer with capacity for size
	// bytes on the given channel.
	AcquireBuffer(instanceID, channelID uint8, size int) ([]byte, error)

	// ReleaseBuffer returns an unsent buffer to the transport.
	ReleaseBuffer(instanceID, channelID uint8, buf []byte) error

	// Send transmits buf on the given channel and consumes the buffer.
	Send(instanceID, channelID uint8, buf []byte) error

	// SetReceiveHandler registers the inbound frame handler. Must be
	// called before Start.
	SetReceiveHandler(handler ReceiveHandler)
}
