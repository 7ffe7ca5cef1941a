package jsbind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateDefaults(t *testing.T) {
	c := Config{}
	require.NoError(t, c.Validate())

	assert.NotEmpty(t, c.WorkDir)
	assert.Equal(t, 3001, c.HotReloadServerPort)
	assert.Equal(t, 10, c.PoolSize)
	assert.Equal(t, time.Duration(0), c.Timeout)
}

func TestConfigValidateWorkDir(t *testing.T) {
	c := Config{WorkDir: t.TempDir()}
	require.NoError(t, c.Validate())

	c = Config{WorkDir: "/definitely/not/a/real/path"}
	assert.Error(t, c.Validate())
}

func TestConfigValidateNegativeTimeout(t *testing.T) {
	c := Config{Timeout: -time.Second}
	assert.Error(t, c.Validate())
}
