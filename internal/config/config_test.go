package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

var secrets = map[string]any{
	"PAYSTACK_SECRET_KEY":  "sk_test",
	"JWT_PRIVATE_KEY":      "jwt",
	"ORDER_ENCRYPTION_KEY": "0123456789abcdef0123456789abcdef",
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(newViper(secrets))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverMySQL, cfg.StorageDriver)
	assert.Equal(t, 10, cfg.WorkerCount)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.Production())
}

func TestFromViper_MissingSecrets(t *testing.T) {
	_, err := fromViper(newViper(map[string]any{"JWT_PRIVATE_KEY": "jwt"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYSTACK_SECRET_KEY")
	assert.Contains(t, err.Error(), "ORDER_ENCRYPTION_KEY")
	assert.NotContains(t, err.Error(), "JWT_PRIVATE_KEY")
}

func TestFromViper_RejectsUnknownDriver(t *testing.T) {
	values := map[string]any{"STORAGE_DRIVER": "postgres"}
	for k, v := range secrets {
		values[k] = v
	}
	_, err := fromViper(newViper(values))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER")
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	for k, v := range secrets {
		t.Setenv(k, v.(string))
	}
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("WORKER_COUNT", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.True(t, cfg.Production())
}
