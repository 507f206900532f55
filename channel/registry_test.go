package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/metric"
)

func testDeclarations() []Declaration {
	return []Declaration{
		{
			InstanceID:    0,
			InstanceName:  "M7_0",
			ChannelID:     0,
			ChannelName:   "echo",
			PrependSize:   false,
			PoolSize:      4,
			FrameCapacity: 128,
		},
		{
			InstanceID:    0,
			InstanceName:  "M7_0",
			ChannelID:     1,
			ChannelName:   "idps_statistics",
			PrependSize:   true,
			PoolSize:      64,
			FrameCapacity: 128,
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{Declarations: testDeclarations()})
	require.NoError(t, err)

	assert.Equal(t, DefaultRoot, reg.Root())
	assert.Len(t, reg.Bindings(), 2)
}

func TestNewRegistryValidation(t *testing.T) {
	t.Run("no declarations", func(t *testing.T) {
		_, err := NewRegistry(RegistryDeps{})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("empty channel name", func(t *testing.T) {
		decls := testDeclarations()
		decls[1].ChannelName = ""
		_, err := NewRegistry(RegistryDeps{Declarations: decls})
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("duplicate identity", func(t *testing.T) {
		decls := testDeclarations()
		decls[1].ChannelID = decls[0].ChannelID
		decls[1].ChannelName = "other"
		_, err := NewRegistry(RegistryDeps{Declarations: decls})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("duplicate path", func(t *testing.T) {
		decls := testDeclarations()
		decls[1].ChannelName = decls[0].ChannelName
		_, err := NewRegistry(RegistryDeps{Declarations: decls})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("invalid ring sizing", func(t *testing.T) {
		decls := testDeclarations()
		decls[0].PoolSize = 0
		_, err := NewRegistry(RegistryDeps{Declarations: decls})
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{Declarations: testDeclarations()})
	require.NoError(t, err)

	b, err := reg.Resolve(0, 1)
	require.NoError(t, err)
	assert.Equal(t, "idps_statistics", b.ChannelName)
	assert.True(t, b.PrependSize)
	assert.NotNil(t, b.Ring)
	assert.Equal(t, 64, b.Ring.PoolSize())
}

func TestResolveUnknownChannel(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{Declarations: testDeclarations()})
	require.NoError(t, err)

	_, err = reg.Resolve(3, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownChannel)
	assert.True(t, errors.IsFatal(err))
}

func TestLookupByName(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{Declarations: testDeclarations()})
	require.NoError(t, err)

	b, err := reg.Lookup("M7_0", "echo")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b.ChannelID)
	assert.False(t, b.PrependSize)

	_, err = reg.Lookup("M7_0", "missing")
	assert.ErrorIs(t, err, errors.ErrUnknownChannel)
}

func TestBindingPath(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{
		Root:         "/dev/ipcfshm",
		Declarations: testDeclarations(),
	})
	require.NoError(t, err)

	b, err := reg.Lookup("M7_0", "idps_statistics")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ipcfshm/M7_0/idps_statistics", b.Path())
	assert.Equal(t, "M7_0/idps_statistics", b.Label())

	inst, ch := reg.PathOf(b)
	assert.Equal(t, "M7_0", inst)
	assert.Equal(t, "idps_statistics", ch)
}

func TestCustomRoot(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{
		Root:         "/run/shmbridge",
		Declarations: testDeclarations(),
	})
	require.NoError(t, err)

	b, err := reg.Lookup("M7_0", "echo")
	require.NoError(t, err)
	assert.Equal(t, "/run/shmbridge/M7_0/echo", b.Path())
}

func TestDropHookWiring(t *testing.T) {
	var dropped []string
	reg, err := NewRegistry(RegistryDeps{
		Declarations: testDeclarations(),
		DropHook: func(b *Binding, size int) {
			dropped = append(dropped, b.ChannelName)
		},
	})
	require.NoError(t, err)

	b, err := reg.Resolve(0, 0)
	require.NoError(t, err)

	// Fill the 4-slot pool, then one more to force an overwrite.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Ring.Produce([]byte{byte(i)}))
	}
	require.Equal(t, []string{"echo"}, dropped)
}

func TestMetricsWiring(t *testing.T) {
	mreg := metric.NewMetricsRegistry()
	_, err := NewRegistry(RegistryDeps{
		Declarations: testDeclarations(),
		Metrics:      mreg,
	})
	require.NoError(t, err)

	// Same labels registered twice must fail, proving per-ring collectors
	// actually landed in the registry.
	_, err = NewRegistry(RegistryDeps{
		Declarations: testDeclarations(),
		Metrics:      mreg,
	})
	require.Error(t, err)
}

func TestResetAll(t *testing.T) {
	reg, err := NewRegistry(RegistryDeps{Declarations: testDeclarations()})
	require.NoError(t, err)

	b, err := reg.Resolve(0, 0)
	require.NoError(t, err)
	require.NoError(t, b.Ring.Produce([]byte("payload")))
	require.Equal(t, 1, b.Ring.Pending())

	reg.ResetAll()
	assert.Equal(t, 0, b.Ring.Pending())
}
