package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int      `env:"TEST_CFG_PORT" envDefault:"8080" validate:"gte=1,lte=65535"`
	Store    string   `env:"TEST_CFG_STORE" envDefault:"memory" validate:"oneof=memory mongo postgres"`
	Brokers  []string `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Debug    bool     `env:"TEST_CFG_DEBUG" envDefault:"false"`
	Attempts int      `env:"TEST_CFG_ATTEMPTS" envDefault:"5" validate:"gte=1"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 5, cfg.Attempts)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_STORE", "mongo")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CFG_DEBUG", "true")

	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "mongo", cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.True(t, cfg.Debug)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("TEST_CFG_STORE", "cassandra")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "Store")
}

type requiredConfig struct {
	Bucket string `env:"TEST_CFG_BUCKET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestCheck_AfterMutation(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	cfg.Attempts = 0
	err := Check(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Attempts")
}
