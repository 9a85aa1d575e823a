package thriftpp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/codec"
)

func mkCodec() codec.MakeCodec {
	return codec.NewFramedCodec(codec.NewBaseCodec())
}

// echoServer decodes one message off conn and writes back a reply
// sharing its seq_id, optionally mismatching it when mismatchSeq is set.
func echoServer(t *testing.T, conn net.Conn, mismatchSeq bool) {
	t.Helper()
	r := bufio.NewReader(conn)
	enc, dec := mkCodec().MakeCodec(r, conn)
	msg, err := dec.Decode(context.Background(), r)
	require.NoError(t, err)

	seq := msg.Meta.SeqID
	if mismatchSeq {
		seq++
	}
	reply := &codec.Message{Meta: codec.Meta{SeqID: seq, MsgType: codec.MsgTypeReply, MethodName: msg.Meta.MethodName}, Payload: []byte("pong")}
	require.NoError(t, enc.Encode(context.Background(), conn, reply))
}

func TestTransport_SendAwaitsMatchingReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go echoServer(t, server, false)

	tr := New(client, mkCodec())
	req := &codec.Message{Meta: codec.Meta{SeqID: 7, MsgType: codec.MsgTypeCall, MethodName: "Solve"}, Payload: []byte("ping")}

	reply, err := tr.Send(context.Background(), req, false)
	require.NoError(t, err)
	assert.Equal(t, int32(7), reply.Meta.SeqID)
	assert.Equal(t, []byte("pong"), reply.Payload)
	assert.True(t, tr.Reusable())
}

func TestTransport_SeqIDMismatchMarksNonReusable(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go echoServer(t, server, true)

	tr := New(client, mkCodec())
	req := &codec.Message{Meta: codec.Meta{SeqID: 1, MsgType: codec.MsgTypeCall, MethodName: "Solve"}, Payload: []byte("ping")}

	_, err := tr.Send(context.Background(), req, false)
	require.Error(t, err)
	assert.False(t, tr.Reusable())
}

func TestTransport_OnewaySkipsAwaitingReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		_, dec := mkCodec().MakeCodec(r, server)
		_, err := dec.Decode(context.Background(), r)
		assert.NoError(t, err)
	}()

	tr := New(client, mkCodec())
	req := &codec.Message{Meta: codec.Meta{SeqID: 3, MsgType: codec.MsgTypeOneway, MethodName: "Notify"}, Payload: []byte("ping")}

	reply, err := tr.Send(context.Background(), req, true)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.True(t, tr.Reusable())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server never observed the oneway message")
	}
}

func TestTransport_ConcurrentSendRejectedWhileAwaiting(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := New(client, mkCodec())
	started := make(chan struct{})
	go func() {
		close(started)
		req := &codec.Message{Meta: codec.Meta{SeqID: 1, MsgType: codec.MsgTypeCall, MethodName: "Solve"}, Payload: []byte("ping")}
		_, _ = tr.Send(context.Background(), req, false)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first Send reach Awaiting

	req2 := &codec.Message{Meta: codec.Meta{SeqID: 2, MsgType: codec.MsgTypeCall, MethodName: "Solve"}, Payload: []byte("ping")}
	_, err := tr.Send(context.Background(), req2, false)
	assert.Error(t, err, "a second Send must be rejected while the first is in flight")
}

func TestTransport_CloseMarksNonReusable(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	tr := New(client, mkCodec())
	require.NoError(t, tr.Close())
	assert.False(t, tr.Reusable())
}
