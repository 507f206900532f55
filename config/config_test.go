package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/shmbridge/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	decls := cfg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "M7_0", decls[0].InstanceName)
	assert.Equal(t, "echo", decls[0].ChannelName)
	assert.False(t, decls[0].PrependSize)
	assert.Equal(t, "idps_statistics", decls[1].ChannelName)
	assert.True(t, decls[1].PrependSize)
	assert.Equal(t, DefaultPoolSize, decls[0].PoolSize)
	assert.Equal(t, DefaultFrameCapacity, decls[0].FrameCapacity)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"instances": [
			{
				"id": 0,
				"name": "M7_0",
				"channels": [
					{"id": 0, "name": "echo"},
					{"id": 1, "name": "idps_statistics", "prepend_size": true, "pool_size": 32}
				]
			}
		],
		"transport": {"kind": "nats", "url": "nats://localhost:4222"},
		"metrics": {"enabled": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, "/dev/ipcfshm", cfg.DeviceRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	decls := cfg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, 32, decls[1].PoolSize)
	assert.Equal(t, DefaultFrameCapacity, decls[1].FrameCapacity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"instances": [`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("no instances", func(t *testing.T) {
		cfg := base()
		cfg.Instances = nil
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("nats without url", func(t *testing.T) {
		cfg := base()
		cfg.Transport.Kind = TransportNATS
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown transport", func(t *testing.T) {
		cfg := base()
		cfg.Transport.Kind = "carrier-pigeon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := base()
		cfg.LogLevel = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unnamed instance", func(t *testing.T) {
		cfg := base()
		cfg.Instances[0].Name = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate channel id", func(t *testing.T) {
		cfg := base()
		cfg.Instances[0].Channels[1].ID = cfg.Instances[0].Channels[0].ID
		assert.Error(t, cfg.Validate())
	})

	t.Run("instance without channels", func(t *testing.T) {
		cfg := base()
		cfg.Instances[0].Channels = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero pool size rejected before defaults", func(t *testing.T) {
		cfg := base()
		cfg.Instances[0].Channels[0].PoolSize = -1
		assert.Error(t, cfg.Validate())
	})
}
