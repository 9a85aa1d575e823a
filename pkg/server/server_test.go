package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conduit/pkg/client"
	"conduit/pkg/codec"
	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/router"
)

func freePort(t *testing.T) rpcaddr.Address {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())
	return rpcaddr.NewIP(net.ParseIP("127.0.0.1"), port)
}

func newTestClient(t *testing.T, addr rpcaddr.Address, kind string) *client.Client {
	t.Helper()
	disc := discovery.NewStaticDiscover(discovery.Instance{Address: addr, Weight: 1})
	c, err := client.New(client.Options{ServiceName: "echo", Discover: disc, TransportKind: kind})
	require.NoError(t, err)
	return c
}

func TestServer_EchoRoundTripMultiplex(t *testing.T) {
	addr := freePort(t)
	srv, err := New(Options{ServiceName: "echo", ListenAddr: addr, TransportKind: "multiplex"})
	require.NoError(t, err)

	require.NoError(t, srv.Handle("Echo", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	c := newTestClient(t, addr, "multiplex")
	resp, err := c.Call(context.Background(), "Echo", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), resp)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_EchoRoundTripPingpong(t *testing.T) {
	addr := freePort(t)
	srv, err := New(Options{ServiceName: "echo", ListenAddr: addr, TransportKind: "pingpong"})
	require.NoError(t, err)

	require.NoError(t, srv.Handle("Echo", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	c := newTestClient(t, addr, "pingpong")
	resp, err := c.Call(context.Background(), "Echo", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), resp)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_UnknownMethodReturnsException(t *testing.T) {
	addr := freePort(t)
	srv, err := New(Options{ServiceName: "echo", ListenAddr: addr, TransportKind: "multiplex"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	c := newTestClient(t, addr, "multiplex")
	_, err = c.Call(context.Background(), "NoSuchMethod", []byte("x"))
	require.Error(t, err)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_HandlerPanicRecovers(t *testing.T) {
	addr := freePort(t)
	srv, err := New(Options{ServiceName: "echo", ListenAddr: addr, TransportKind: "multiplex"})
	require.NoError(t, err)

	require.NoError(t, srv.Handle("Boom", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		panic("kaboom")
	}))
	require.NoError(t, srv.Handle("Echo", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	c := newTestClient(t, addr, "multiplex")

	_, err = c.Call(context.Background(), "Boom", []byte("x"))
	require.Error(t, err)

	// the connection must still serve subsequent calls after a recovered panic
	resp, err := c.Call(context.Background(), "Echo", []byte("still alive"))
	require.NoError(t, err)
	require.Equal(t, []byte("still alive"), resp)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_BizErrorReturnsException(t *testing.T) {
	addr := freePort(t)
	srv, err := New(Options{ServiceName: "echo", ListenAddr: addr, TransportKind: "multiplex"})
	require.NoError(t, err)

	require.NoError(t, srv.Handle("Fail", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return nil, rpcerr.Biz(42, "insufficient balance", nil)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	c := newTestClient(t, addr, "multiplex")
	_, err = c.Call(context.Background(), "Fail", []byte("x"))
	require.Error(t, err)

	require.NoError(t, srv.Shutdown(context.Background()))
}

// compile-time check that Handle's callback matches router.Handler's shape.
var _ router.Handler = func(cx *rpcinfo.Context, payload []byte) ([]byte, error) { return nil, nil }

var _ codec.MakeCodec = codec.NewBaseCodec()
