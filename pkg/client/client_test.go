package client

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conduit/pkg/codec"
	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// runEchoServer accepts exactly one connection on lis and echoes every
// request's payload back as a Reply with the same seq_id, using the same
// codec chain the Client dials with.
func runEchoServer(t *testing.T, lis net.Listener, mk codec.MakeCodec) {
	t.Helper()
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		enc, dec := mk.MakeCodec(r, conn)
		for {
			msg, err := dec.Decode(context.Background(), r)
			if err != nil {
				return
			}
			reply := &codec.Message{
				Meta: codec.Meta{
					SeqID:      msg.Meta.SeqID,
					MsgType:    codec.MsgTypeReply,
					MethodName: msg.Meta.MethodName,
				},
				Payload: msg.Payload,
			}
			if err := enc.Encode(context.Background(), conn, reply); err != nil {
				return
			}
		}
	}()
}

func TestClient_CallRoundTripsThroughMultiplex(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	mk := codec.NewFramedCodec(codec.NewBaseCodec())
	runEchoServer(t, lis, mk)

	port := lis.Addr().(*net.TCPAddr).Port
	addr := rpcaddr.NewIP(net.ParseIP("127.0.0.1"), port)
	disc := discovery.NewStaticDiscover(discovery.Instance{Address: addr, Weight: 1})

	c, err := New(Options{ServiceName: "echo", Discover: disc, TransportKind: "multiplex", Codec: mk})
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), "Echo", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), resp)
}

func TestClient_CallWithAddressOverrideBypassesDiscovery(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	mk := codec.NewFramedCodec(codec.NewBaseCodec())
	runEchoServer(t, lis, mk)

	port := lis.Addr().(*net.TCPAddr).Port
	addr := rpcaddr.NewIP(net.ParseIP("127.0.0.1"), port)

	disc := discovery.NewStaticDiscover() // empty: discovery alone would fail
	c, err := New(Options{ServiceName: "echo", Discover: disc, TransportKind: "multiplex", Codec: mk})
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), "Echo", []byte("direct"), WithAddress(addr))
	require.NoError(t, err)
	require.Equal(t, []byte("direct"), resp)
}

func TestOneShotService_SecondCallFails(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	mk := codec.NewFramedCodec(codec.NewBaseCodec())
	runEchoServer(t, lis, mk)

	port := lis.Addr().(*net.TCPAddr).Port
	addr := rpcaddr.NewIP(net.ParseIP("127.0.0.1"), port)
	disc := discovery.NewStaticDiscover(discovery.Instance{Address: addr, Weight: 1})

	c, err := New(Options{ServiceName: "echo", Discover: disc, TransportKind: "multiplex", Codec: mk})
	require.NoError(t, err)

	oneShot := c.WithCallOpt(WithTag("shard", "1"))
	_, err = oneShot.Call(context.Background(), "Echo", []byte("x"))
	require.NoError(t, err)

	_, err = oneShot.Call(context.Background(), "Echo", []byte("y"))
	require.Error(t, err)
}

func TestClient_RPCTimeoutAppliesWhenSet(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	// Never accept: the dial connects but the server never replies.

	mk := codec.NewFramedCodec(codec.NewBaseCodec())
	port := lis.Addr().(*net.TCPAddr).Port
	addr := rpcaddr.NewIP(net.ParseIP("127.0.0.1"), port)
	disc := discovery.NewStaticDiscover(discovery.Instance{Address: addr, Weight: 1})

	c, err := New(Options{ServiceName: "echo", Discover: disc, TransportKind: "multiplex", Codec: mk})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Call(ctx, "Echo", []byte("hi"), WithConfig(rpcinfo.WithRPCTimeout(50*time.Millisecond)))
	require.Error(t, err)
}
