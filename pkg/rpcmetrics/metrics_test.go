package rpcmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Noop.PoolGauge("svc", "multiplex", 1, 2)
		Noop.PickerSelected("svc", "10.0.0.1:9090")
		Noop.CodecDecodeError("ttheader")
		Noop.RequestDuration("Solve", "unary", 0.01, true)
	})
}

func TestCollectors_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg, "")
	require.NotNil(t, c)

	c.PoolGauge("solver-svc", "pingpong", 2, 1)
	c.PickerSelected("solver-svc", "10.0.0.1:9090")
	c.CodecDecodeError("ttheader")
	c.RequestDuration("Solve", "unary", 0.05, true)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
