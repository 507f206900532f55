// Package channel provides the static registry mapping channel identity
// to its ring buffer and user-visible device path.
//
// The registry is built once at start-up from declared configuration and
// never resized: no channel is created or destroyed at runtime. A lookup
// miss is a configuration bug surfaced at open/registration time, not a
// steady-state fault.
package channel

import (
	"fmt"
	"path"

	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/metric"
	"github.com/c360/shmbridge/ring"
)

// DefaultRoot is the root of the external device namespace, matching
// the layout /dev/ipcfshm/<instance>/<channel>.
const DefaultRoot = "/dev/ipcfshm"

// Declaration describes one channel as declared in configuration.
type Declaration struct {
	InstanceID    uint8
	InstanceName  string
	ChannelID     uint8
	ChannelName   string
	PrependSize   bool
	PoolSize      int
	FrameCapacity int
}

// Binding ties a channel identity to its ring and external path.
type Binding struct {
	InstanceID   uint8
	ChannelID    uint8
	InstanceName string
	ChannelName  string
	PrependSize  bool
	Ring         *ring.Ring

	path string
}

// Path returns the stable external identity <root>/<instance>/<channel>.
func (b *Binding) Path() string {
	return b.path
}

// Label returns the short <instance>/<channel> form used in metrics and
// health reporting.
func (b *Binding) Label() string {
	return b.InstanceName + "/" + b.ChannelName
}

// RegistryDeps holds construction inputs for the registry.
type RegistryDeps struct {
	Root         string                  // device root; DefaultRoot if empty
	Declarations []Declaration           // complete static channel set
	Metrics      *metric.MetricsRegistry // optional per-ring Prometheus export
	DropHook     func(*Binding, int)     // optional, invoked on silent overwrite
}

// Registry is the fixed channel table. It is immutable after New.
type Registry struct {
	root     string
	bindings []*Binding
	byID     map[uint16]*Binding
	byName   map[string]*Binding
}

// NewRegistry builds the channel table from declared configuration.
// Any inconsistency (duplicate identity, duplicate path, bad sizes) is
// fatal misconfiguration and fails construction.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	root := deps.Root
	if root == "" {
		root = DefaultRoot
	}
	if len(deps.Declarations) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "NewRegistry", "channel declarations")
	}

	r := &Registry{
		root:     root,
		bindings: make([]*Binding, 0, len(deps.Declarations)),
		byID:     make(map[uint16]*Binding, len(deps.Declarations)),
		byName:   make(map[string]*Binding, len(deps.Declarations)),
	}

	for _, decl := range deps.Declarations {
		if decl.InstanceName == "" || decl.ChannelName == "" {
			return nil, errors.WrapFatal(
				fmt.Errorf("instance %d channel %d: empty name", decl.InstanceID, decl.ChannelID),
				"Registry", "NewRegistry", "name validation")
		}

		b := &Binding{
			InstanceID:   decl.InstanceID,
			ChannelID:    decl.ChannelID,
			InstanceName: decl.InstanceName,
			ChannelName:  decl.ChannelName,
			PrependSize:  decl.PrependSize,
			path:         path.Join(root, decl.InstanceName, decl.ChannelName),
		}

		id := bindingKey(decl.InstanceID, decl.ChannelID)
		if _, exists := r.byID[id]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("instance %d channel %d declared twice", decl.InstanceID, decl.ChannelID),
				"Registry", "NewRegistry", "identity validation")
		}
		nameKey := b.Label()
		if _, exists := r.byName[nameKey]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("path %s declared twice", b.path),
				"Registry", "NewRegistry", "path validation")
		}

		ringOpts := []ring.Option{}
		if deps.Metrics != nil {
			ringOpts = append(ringOpts, ring.WithMetrics(deps.Metrics, b.Label()))
		}
		if deps.DropHook != nil {
			hook := deps.DropHook
			binding := b
			ringOpts = append(ringOpts, ring.WithDropHook(func(size int) {
				hook(binding, size)
			}))
		}

		rb, err := ring.New(decl.PoolSize, decl.FrameCapacity, ringOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "Registry", "NewRegistry",
				fmt.Sprintf("ring for %s", b.path))
		}
		b.Ring = rb

		r.bindings = append(r.bindings, b)
		r.byID[id] = b
		r.byName[nameKey] = b
	}

	return r, nil
}

// Resolve maps (instance id, channel id) to its binding. A miss means
// the pair was never declared: fatal misconfiguration upstream.
func (r *Registry) Resolve(instanceID, channelID uint8) (*Binding, error) {
	b, ok := r.byID[bindingKey(instanceID, channelID)]
	if !ok {
		return nil, errors.WrapFatal(errors.ErrUnknownChannel, "Registry", "Resolve",
			fmt.Sprintf("instance %d channel %d", instanceID, channelID))
	}
	return b, nil
}

// Lookup maps user-visible names to a binding, for open-time resolution.
func (r *Registry) Lookup(instanceName, channelName string) (*Binding, error) {
	b, ok := r.byName[instanceName+"/"+channelName]
	if !ok {
		return nil, errors.WrapFatal(errors.ErrUnknownChannel, "Registry", "Lookup",
			fmt.Sprintf("%s/%s", instanceName, channelName))
	}
	return b, nil
}

// PathOf returns the external identity for a binding.
func (r *Registry) PathOf(b *Binding) (instanceName, channelName string) {
	return b.InstanceName, b.ChannelName
}

// Bindings returns all channel bindings in declaration order.
func (r *Registry) Bindings() []*Binding {
	return r.bindings
}

// Root returns the device namespace root.
func (r *Registry) Root() string {
	return r.root
}

// ResetAll returns every ring to its empty start-up state.
func (r *Registry) ResetAll() {
	for _, b := range r.bindings {
		b.Ring.Reset()
	}
}

// bindingKey packs an identity pair into a map key.
func bindingKey(instanceID, channelID uint8) uint16 {
	return uint16(instanceID)<<8 | uint16(channelID)
}
