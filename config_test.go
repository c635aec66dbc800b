package campaign

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okanek/campaign/natskv"
	"github.com/okanek/campaign/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "leader", cfg.Key)
	require.Empty(t, cfg.ID)
	require.Equal(t, natskv.DefaultBucket, cfg.Bucket)
	require.Equal(t, 30*time.Second, cfg.BucketTTL)
	require.Equal(t, 10*time.Second, cfg.RenewInterval)
	require.Equal(t, 200*time.Millisecond, cfg.RetryInterval)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, types.OpenPermissions, cfg.Permissions)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "leader", cfg.Key)
		require.Equal(t, natskv.DefaultBucket, cfg.Bucket)
		require.Equal(t, 30*time.Second, cfg.BucketTTL)
		require.Equal(t, 10*time.Second, cfg.RenewInterval)
		require.Equal(t, 200*time.Millisecond, cfg.RetryInterval)
		require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Key:              "primary",
			ID:               "node-1",
			Bucket:           "my-bucket",
			BucketTTL:        time.Minute,
			RenewInterval:    20 * time.Second,
			RetryInterval:    time.Second,
			OperationTimeout: 5 * time.Second,
		}
		SetDefaults(&cfg)

		require.Equal(t, "primary", cfg.Key)
		require.Equal(t, "node-1", cfg.ID)
		require.Equal(t, "my-bucket", cfg.Bucket)
		require.Equal(t, time.Minute, cfg.BucketTTL)
		require.Equal(t, 20*time.Second, cfg.RenewInterval)
		require.Equal(t, time.Second, cfg.RetryInterval)
		require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	})

	t.Run("never fills in an identity", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)
		require.Empty(t, cfg.ID)
	})

	t.Run("preserves disabled behaviors", func(t *testing.T) {
		cfg := Config{
			BucketTTL:     Disabled,
			RenewInterval: Disabled,
			RetryInterval: Disabled,
		}
		SetDefaults(&cfg)

		require.Equal(t, Disabled, cfg.BucketTTL)
		require.Equal(t, Disabled, cfg.RenewInterval)
		require.Equal(t, Disabled, cfg.RetryInterval)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{}
		SetDefaults(&cfg)
		return cfg
	}

	t.Run("accepts defaults", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
	})

	t.Run("rejects empty key", func(t *testing.T) {
		cfg := valid()
		cfg.Key = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive operation timeout", func(t *testing.T) {
		cfg := valid()
		cfg.OperationTimeout = -time.Second
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects renew interval at or above bucket TTL", func(t *testing.T) {
		cfg := valid()
		cfg.BucketTTL = 10 * time.Second
		cfg.RenewInterval = 10 * time.Second
		require.Error(t, cfg.Validate())

		cfg.RenewInterval = 15 * time.Second
		require.Error(t, cfg.Validate())
	})

	t.Run("allows disabled renewal against an active TTL", func(t *testing.T) {
		cfg := valid()
		cfg.RenewInterval = Disabled
		require.NoError(t, cfg.Validate())
	})

	t.Run("allows no bucket TTL", func(t *testing.T) {
		cfg := valid()
		cfg.BucketTTL = Disabled
		require.NoError(t, cfg.Validate())
	})

	t.Run("allows unpaced retries", func(t *testing.T) {
		cfg := valid()
		cfg.RetryInterval = Disabled
		require.NoError(t, cfg.Validate())
	})
}

func TestDisabledSurvivesConstruction(t *testing.T) {
	cfg := TestConfig()
	cfg.BucketTTL = Disabled
	cfg.RenewInterval = Disabled
	cfg.RetryInterval = Disabled

	e, err := New(nil, cfg, WithCoordinator(newFakeCoordinator()))
	require.NoError(t, err)
	require.Equal(t, Disabled, e.cfg.BucketTTL)
	require.Equal(t, Disabled, e.cfg.RenewInterval)
	require.Equal(t, Disabled, e.cfg.RetryInterval)

	// The built-in coordinator must never see a negative bucket TTL.
	require.Equal(t, time.Duration(0), e.cfg.bucketTTL())
}

func TestLoadConfig(t *testing.T) {
	t.Run("parses duration strings", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
key: primary
id: node-42
bucket: elections
bucketTtl: 1m
renewInterval: 20s
retryInterval: 500ms
operationTimeout: 5s
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "primary", cfg.Key)
		require.Equal(t, "node-42", cfg.ID)
		require.Equal(t, "elections", cfg.Bucket)
		require.Equal(t, time.Minute, cfg.BucketTTL)
		require.Equal(t, 20*time.Second, cfg.RenewInterval)
		require.Equal(t, 500*time.Millisecond, cfg.RetryInterval)
		require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bucketTtl: soonish\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	require.NoError(t, cfg.Validate())
	require.Less(t, cfg.RenewInterval, cfg.BucketTTL)
	require.Less(t, cfg.RetryInterval, DefaultConfig().RetryInterval)
}
