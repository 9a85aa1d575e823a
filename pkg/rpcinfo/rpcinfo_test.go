package rpcinfo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_MergeIsFieldByField(t *testing.T) {
	base := WithRPCTimeout(2 * time.Second)
	base.ConnectTimeout = dur(500 * time.Millisecond)

	overlay := Config{ReadWriteTimeout: dur(100 * time.Millisecond)}

	merged := base.Merge(overlay)

	require.NotNil(t, merged.RPCTimeout)
	assert.Equal(t, 2*time.Second, *merged.RPCTimeout, "unset overlay fields must not clobber base")
	require.NotNil(t, merged.ConnectTimeout)
	assert.Equal(t, 500*time.Millisecond, *merged.ConnectTimeout)
	require.NotNil(t, merged.ReadWriteTimeout)
	assert.Equal(t, 100*time.Millisecond, *merged.ReadWriteTimeout)
}

func TestConfig_MergeEmptyOverlayChangesNothing(t *testing.T) {
	base := WithRPCTimeout(time.Second)
	merged := base.Merge(Config{})
	require.NotNil(t, merged.RPCTimeout)
	assert.Equal(t, time.Second, *merged.RPCTimeout)
}

func TestEndpoint_TagsAndAddress(t *testing.T) {
	e := NewEndpoint("solver-svc")
	e.SetFaststrTag("zone", "us-east")

	v, ok := e.FaststrTag("zone")
	require.True(t, ok)
	assert.Equal(t, "us-east", v)

	_, ok = e.Address()
	assert.False(t, ok, "address unset until resolved")
}

func TestMetaInfo_PersistentForwardedEveryHop(t *testing.T) {
	m := NewMetaInfo()
	m.SetPersistent("tenant", "acme")
	m.SetTransient("trace-hint", "abc")

	headers := m.OutboundHeaders()
	assert.Equal(t, "acme", headers[PersistentPrefix+"tenant"])
	assert.Equal(t, "abc", headers[TransientPrefix+"trace-hint"])

	// Simulate the next hop ingesting and re-forwarding: transient must
	// not survive past the first hop's ingestion into a *new* MetaInfo's
	// outbound headers unless re-set explicitly.
	next := NewMetaInfo()
	next.IngestInboundHeaders(headers)
	nextOutbound := next.OutboundHeaders()
	assert.Equal(t, "acme", nextOutbound[PersistentPrefix+"tenant"], "persistent must forward")
}

func TestMetaInfo_BackwardScopedToCurrentCall(t *testing.T) {
	server := NewMetaInfo()
	server.SetBackward("shard", "7")

	client := NewMetaInfo()
	client.IngestBackwardHeaders(server.OutboundBackwardHeaders())

	v, ok := client.Get("shard")
	require.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestContext_ExtensionsAndReusability(t *testing.T) {
	info := NewRpcInfo(RoleClient, NewEndpoint("gateway"), NewEndpoint("solver"), "Solve", Config{})
	ctx := NewContext(context.Background(), info)

	assert.False(t, ctx.ConnReset())
	ctx.MarkNonReusable()
	assert.True(t, ctx.ConnReset())

	ctx.SetExtension("retries", 2)
	v, ok := ctx.Extension("retries")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.NotEmpty(t, ctx.TraceID)
}
