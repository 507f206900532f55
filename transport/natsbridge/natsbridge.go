// Package natsbridge carries channel frames over NATS subjects, one
// subject pair per channel: frames written locally are published on
// shm.<instance>.<channel>.tx and inbound frames arrive on
// shm.<instance>.<channel>.rx. The NATS delivery goroutine is the
// asynchronous producer context for the receive path.
package natsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/natsclient"
	"github.com/c360/shmbridge/transport"
)

const (
	subjectPrefix   = "shm"
	defaultTxSlots  = 16
	defaultSlotSize = 128
)

// Route maps a channel identity pair to the names used in subjects.
type Route struct {
	InstanceID   uint8
	ChannelID    uint8
	InstanceName string
	ChannelName  string
}

// TxSubject returns the publish subject for outbound frames.
func (r Route) TxSubject() string {
	return fmt.Sprintf("%s.%s.%s.tx", subjectPrefix, r.InstanceName, r.ChannelName)
}

// RxSubject returns the subscribe subject for inbound frames.
func (r Route) RxSubject() string {
	return fmt.Sprintf("%s.%s.%s.rx", subjectPrefix, r.InstanceName, r.ChannelName)
}

// Config sizes the transport and names its routes.
type Config struct {
	Routes   []Route
	TxSlots  int // transmit buffer pool size, default 16
	SlotSize int // transmit buffer capacity in bytes, default 128
}

// Deps holds construction dependencies.
type Deps struct {
	Client *natsclient.Client
	Logger *slog.Logger
}

// Transport is a NATS-backed transport.Transport.
type Transport struct {
	config Config
	client *natsclient.Client
	logger *slog.Logger

	routes   map[uint16]Route
	freelist chan []byte

	mu      sync.Mutex
	handler transport.ReceiveHandler
	started bool
}

// New builds the transport. The client must be connected before Start.
func New(config Config, deps Deps) (*Transport, error) {
	if deps.Client == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("nil NATS client"), "Transport", "New", "validate deps")
	}
	if len(config.Routes) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Transport", "New", "routes")
	}
	if config.TxSlots <= 0 {
		config.TxSlots = defaultTxSlots
	}
	if config.SlotSize <= 0 {
		config.SlotSize = defaultSlotSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	routes := make(map[uint16]Route, len(config.Routes))
	for _, route := range config.Routes {
		key := routeKey(route.InstanceID, route.ChannelID)
		if _, exists := routes[key]; exists {
			return nil, errors.WrapInvalid(
				fmt.Errorf("route for instance %d channel %d declared twice",
					route.InstanceID, route.ChannelID),
				"Transport", "New", "route validation")
		}
		routes[key] = route
	}

	freelist := make(chan []byte, config.TxSlots)
	for i := 0; i < config.TxSlots; i++ {
		freelist <- make([]byte, config.SlotSize)
	}

	return &Transport{
		config:   config,
		client:   deps.Client,
		logger:   logger.With("component", "natsbridge"),
		routes:   routes,
		freelist: freelist,
	}, nil
}

// SetReceiveHandler registers the inbound frame handler.
func (t *Transport) SetReceiveHandler(handler transport.ReceiveHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Start subscribes every route's rx subject. The context bounds the
// initial connection only.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Transport", "Start", "startup")
	}

	if !t.client.IsHealthy() {
		if err := t.client.Connect(ctx); err != nil {
			return errors.Wrap(err, "Transport", "Start", "connect")
		}
	}

	for _, route := range t.routes {
		route := route
		_, err := t.client.Subscribe(route.RxSubject(), func(msg *nats.Msg) {
			t.deliver(route, msg.Data)
		})
		if err != nil {
			return errors.Wrap(err, "Transport", "Start",
				fmt.Sprintf("subscribe %s", route.RxSubject()))
		}
	}

	t.started = true
	t.logger.Info("nats transport started",
		"routes", len(t.routes),
		"server", t.client.URL())
	return nil
}

// Stop drains the NATS connection, waiting up to timeout.
func (t *Transport) Stop(timeout time.Duration) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Transport", "Stop", "shutdown")
	}
	t.started = false
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.client.Close(ctx)
}

// Ready reports whether the NATS connection is healthy.
func (t *Transport) Ready() bool {
	return t.client.IsHealthy()
}

// AcquireBuffer takes a transmit buffer from the freelist.
func (t *Transport) AcquireBuffer(instanceID, channelID uint8, size int) ([]byte, error) {
	if size > t.config.SlotSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("requested %d bytes, slot capacity %d", size, t.config.SlotSize),
			"Transport", "AcquireBuffer", "size check")
	}
	select {
	case buf := <-t.freelist:
		return buf[:size], nil
	default:
		return nil, errors.WrapTransient(errors.ErrTransportExhausted,
			"Transport", "AcquireBuffer",
			fmt.Sprintf("instance %d channel %d", instanceID, channelID))
	}
}

// ReleaseBuffer returns an unsent buffer to the freelist.
func (t *Transport) ReleaseBuffer(instanceID, channelID uint8, buf []byte) error {
	t.recycle(buf)
	return nil
}

// Send publishes the buffer on the route's tx subject and recycles it.
func (t *Transport) Send(instanceID, channelID uint8, buf []byte) error {
	route, ok := t.routes[routeKey(instanceID, channelID)]
	if !ok {
		t.recycle(buf)
		return errors.WrapFatal(errors.ErrUnknownChannel, "Transport", "Send",
			fmt.Sprintf("instance %d channel %d", instanceID, channelID))
	}

	err := t.client.Publish(route.TxSubject(), buf)
	t.recycle(buf)
	if err != nil {
		return errors.WrapTransient(err, "Transport", "Send", route.TxSubject())
	}
	return nil
}

// deliver hands an inbound frame to the registered handler.
func (t *Transport) deliver(route Route, data []byte) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		t.logger.Warn("inbound frame with no handler registered",
			"subject", route.RxSubject())
		return
	}
	handler(route.InstanceID, route.ChannelID, data)
}

// recycle returns a buffer to the freelist at full capacity.
func (t *Transport) recycle(buf []byte) {
	select {
	case t.freelist <- buf[:cap(buf)]:
	default:
		t.logger.Warn("discarding buffer not from the pool")
	}
}

func routeKey(instanceID, channelID uint8) uint16 {
	return uint16(instanceID)<<8 | uint16(channelID)
}
