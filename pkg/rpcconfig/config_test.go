package rpcconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClientOptions(t *testing.T) {
	cfg := DefaultClientOptions()
	assert.Equal(t, "round_robin", cfg.LoadBalance)
	assert.Equal(t, "static", cfg.Discovery)
	assert.Greater(t, cfg.RetryCount, -1)
	assert.Greater(t, cfg.RPCTimeout.Seconds(), 0.0)
}

func TestDefaultServerOptions(t *testing.T) {
	cfg := DefaultServerOptions()
	assert.Equal(t, "multiplex", cfg.Transport)
	assert.NotEmpty(t, cfg.ListenAddr)
}

func TestLoader_LoadClientOptionsWithoutFile(t *testing.T) {
	l := NewLoader(WithConfigPath("/nonexistent/conduit.yaml"))
	cfg, err := l.LoadClientOptions()
	assert.NoError(t, err)
	assert.Equal(t, "round_robin", cfg.LoadBalance)
}
