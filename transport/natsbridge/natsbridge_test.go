package natsbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/shmbridge/errors"
	"github.com/c360/shmbridge/natsclient"
)

func testRoutes() []Route {
	return []Route{
		{InstanceID: 0, ChannelID: 0, InstanceName: "M7_0", ChannelName: "echo"},
		{InstanceID: 0, ChannelID: 1, InstanceName: "M7_0", ChannelName: "idps_statistics"},
	}
}

func testClient(t *testing.T) *natsclient.Client {
	t.Helper()
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	return client
}

func TestSubjectMapping(t *testing.T) {
	route := Route{InstanceID: 0, ChannelID: 1, InstanceName: "M7_0", ChannelName: "idps_statistics"}
	assert.Equal(t, "shm.M7_0.idps_statistics.tx", route.TxSubject())
	assert.Equal(t, "shm.M7_0.idps_statistics.rx", route.RxSubject())
}

func TestNewValidation(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		_, err := New(Config{Routes: testRoutes()}, Deps{})
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("no routes", func(t *testing.T) {
		_, err := New(Config{}, Deps{Client: testClient(t)})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("duplicate route", func(t *testing.T) {
		routes := testRoutes()
		routes[1].InstanceID = routes[0].InstanceID
		routes[1].ChannelID = routes[0].ChannelID
		_, err := New(Config{Routes: routes}, Deps{Client: testClient(t)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})
}

func TestAcquireRelease(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes(), TxSlots: 2, SlotSize: 64},
		Deps{Client: testClient(t)})
	require.NoError(t, err)

	buf, err := tr.AcquireBuffer(0, 0, 48)
	require.NoError(t, err)
	assert.Len(t, buf, 48)
	assert.Equal(t, 64, cap(buf))

	require.NoError(t, tr.ReleaseBuffer(0, 0, buf))
}

func TestAcquireExhaustion(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes(), TxSlots: 1, SlotSize: 64},
		Deps{Client: testClient(t)})
	require.NoError(t, err)

	_, err = tr.AcquireBuffer(0, 0, 8)
	require.NoError(t, err)

	_, err = tr.AcquireBuffer(0, 0, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransportExhausted)
}

func TestAcquireOversized(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes(), SlotSize: 32},
		Deps{Client: testClient(t)})
	require.NoError(t, err)

	_, err = tr.AcquireBuffer(0, 0, 33)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSendUnknownRoute(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes(), TxSlots: 1},
		Deps{Client: testClient(t)})
	require.NoError(t, err)

	buf, err := tr.AcquireBuffer(0, 0, 4)
	require.NoError(t, err)

	err = tr.Send(9, 9, buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownChannel)

	// Buffer must return to the pool even on a failed send.
	_, err = tr.AcquireBuffer(0, 0, 4)
	assert.NoError(t, err)
}

func TestSendWithoutConnection(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes(), TxSlots: 1},
		Deps{Client: testClient(t)})
	require.NoError(t, err)

	buf, err := tr.AcquireBuffer(0, 0, 4)
	require.NoError(t, err)

	err = tr.Send(0, 0, buf)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	_, err = tr.AcquireBuffer(0, 0, 4)
	assert.NoError(t, err)
}

func TestStopBeforeStart(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes()}, Deps{Client: testClient(t)})
	require.NoError(t, err)

	err = tr.Stop(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestNotReadyWithoutConnection(t *testing.T) {
	tr, err := New(Config{Routes: testRoutes()}, Deps{Client: testClient(t)})
	require.NoError(t, err)
	assert.False(t, tr.Ready())
}
