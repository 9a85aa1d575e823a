package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/rpcmetrics"
)

type recordedGauge struct {
	service, kind string
	idle, active  int
}

type fakeRecorder struct {
	rpcmetrics.Recorder
	mu     sync.Mutex
	gauges []recordedGauge
}

func (r *fakeRecorder) PoolGauge(service, kind string, idle, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, recordedGauge{service, kind, idle, active})
}

func (r *fakeRecorder) last() recordedGauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[len(r.gauges)-1]
}

type fakeTransport struct {
	reusable int32
	closed   int32
}

func newFakeTransport(reusable bool) *fakeTransport {
	t := &fakeTransport{}
	if reusable {
		t.reusable = 1
	}
	return t
}

func (t *fakeTransport) Reusable() bool { return atomic.LoadInt32(&t.reusable) != 0 }
func (t *fakeTransport) Close() error    { atomic.StoreInt32(&t.closed, 1); return nil }
func (t *fakeTransport) isClosed() bool  { return atomic.LoadInt32(&t.closed) != 0 }

func TestPool_GetDialsOnMissAndReusesOnRelease(t *testing.T) {
	p := New(time.Minute, time.Hour)
	defer p.Close()

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	dials := int32(0)
	mk := func(context.Context) (Transport, error) {
		atomic.AddInt32(&dials, 1)
		return newFakeTransport(true), nil
	}

	pooled, err := p.Get(context.Background(), key, mk)
	require.NoError(t, err)
	first := pooled.Transport
	pooled.Release()

	pooled2, err := p.Get(context.Background(), key, mk)
	require.NoError(t, err)
	assert.Same(t, first, pooled2.Transport, "reusable transport should be handed back out")
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	pooled2.Release()
}

func TestPool_NonReusableTransportIsClosedNotPooled(t *testing.T) {
	p := New(time.Minute, time.Hour)
	defer p.Close()

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	ft := newFakeTransport(false)
	mk := func(context.Context) (Transport, error) { return ft, nil }

	pooled, err := p.Get(context.Background(), key, mk)
	require.NoError(t, err)
	pooled.Release()
	assert.True(t, ft.isClosed())

	dials := 0
	pooled2, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		dials++
		return newFakeTransport(true), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dials, "non-reusable entry must not be handed back out")
	pooled2.Release()
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	p := New(time.Minute, time.Hour)
	defer p.Close()

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	pooled, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		return newFakeTransport(true), nil
	})
	require.NoError(t, err)

	pooled.Release()
	pooled.Release() // must not panic or double-close

	pooled2, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		t.Fatal("should have reused the pooled entry")
		return nil, nil
	})
	require.NoError(t, err)
	_ = pooled2
}

func TestPool_SweepExpiresIdleEntries(t *testing.T) {
	p := New(10*time.Millisecond, 5*time.Millisecond)
	defer p.Close()

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	ft := newFakeTransport(true)
	pooled, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		return ft, nil
	})
	require.NoError(t, err)
	pooled.Release()

	assert.Eventually(t, ft.isClosed, time.Second, 5*time.Millisecond, "idle entry should be swept and closed")
}

func TestPool_CloseClosesIdleEntries(t *testing.T) {
	p := New(time.Minute, time.Hour)

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	ft := newFakeTransport(true)
	pooled, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		return ft, nil
	})
	require.NoError(t, err)
	pooled.Release()

	require.NoError(t, p.Close())
	assert.True(t, ft.isClosed())
}

func TestPool_SetRecorderReportsGauges(t *testing.T) {
	p := New(time.Minute, time.Hour)
	defer p.Close()

	rec := &fakeRecorder{}
	p.SetRecorder(rec)

	key := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	pooled, err := p.Get(context.Background(), key, func(context.Context) (Transport, error) {
		return newFakeTransport(true), nil
	})
	require.NoError(t, err)
	assert.Equal(t, recordedGauge{"svc", "pingpong", 0, 1}, rec.last())

	pooled.Release()
	assert.Equal(t, recordedGauge{"svc", "pingpong", 1, 0}, rec.last())
}

func TestPool_DistinctKeysDoNotShareEntries(t *testing.T) {
	p := New(time.Minute, time.Hour)
	defer p.Close()

	keyA := Key{Service: "svc", Addr: "10.0.0.1:9000", Kind: "pingpong"}
	keyB := Key{Service: "svc", Addr: "10.0.0.2:9000", Kind: "pingpong"}

	a, err := p.Get(context.Background(), keyA, func(context.Context) (Transport, error) {
		return newFakeTransport(true), nil
	})
	require.NoError(t, err)
	b, err := p.Get(context.Background(), keyB, func(context.Context) (Transport, error) {
		return newFakeTransport(true), nil
	})
	require.NoError(t, err)
	assert.NotSame(t, a.Transport, b.Transport)
	a.Release()
	b.Release()
}
