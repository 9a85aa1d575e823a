package multiplex

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/codec"
)

func mkCodec() codec.MakeCodec {
	return codec.NewFramedCodec(codec.NewBaseCodec())
}

// concurrentEchoServer decodes requests as they arrive and replies after
// delay, out of order is fine since replies carry the matching seq_id.
func concurrentEchoServer(t *testing.T, conn net.Conn, delay time.Duration) {
	t.Helper()
	r := bufio.NewReader(conn)
	enc, dec := mkCodec().MakeCodec(r, conn)
	var sendMu sync.Mutex

	for {
		msg, err := dec.Decode(context.Background(), r)
		if err != nil {
			return
		}
		go func(m *codec.Message) {
			time.Sleep(delay)
			reply := &codec.Message{Meta: codec.Meta{SeqID: m.Meta.SeqID, MsgType: codec.MsgTypeReply, MethodName: m.Meta.MethodName}, Payload: m.Payload}
			sendMu.Lock()
			_ = enc.Encode(context.Background(), conn, reply)
			sendMu.Unlock()
		}(msg)
	}
}

func TestTransport_ConcurrentRequestsMatchBySeqID(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go concurrentEchoServer(t, server, 10*time.Millisecond)

	tr := New(client, mkCodec())

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i)}
			req := &codec.Message{Meta: codec.Meta{MsgType: codec.MsgTypeCall, MethodName: "Solve"}, Payload: payload}
			reply, err := tr.Send(context.Background(), req, false)
			assert.NoError(t, err)
			require.NotNil(t, reply)
			assert.Equal(t, payload, reply.Payload)
		}(i)
	}
	wg.Wait()
}

func TestTransport_SeqIDsAreUnique(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go concurrentEchoServer(t, server, 0)

	tr := New(client, mkCodec())
	seen := make(map[int32]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &codec.Message{Meta: codec.Meta{MsgType: codec.MsgTypeCall, MethodName: "Solve"}}
			reply, err := tr.Send(context.Background(), req, false)
			require.NoError(t, err)
			mu.Lock()
			assert.False(t, seen[reply.Meta.SeqID], "seq_id must be unique per connection")
			seen[reply.Meta.SeqID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
}

func TestTransport_CancelDropsWaiterWithoutPanic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go concurrentEchoServer(t, server, 200*time.Millisecond)

	tr := New(client, mkCodec())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req := &codec.Message{Meta: codec.Meta{MsgType: codec.MsgTypeCall, MethodName: "Solve"}}
	_, err := tr.Send(ctx, req, false)
	require.Error(t, err)

	time.Sleep(250 * time.Millisecond) // let the late reply arrive and be discarded
}

func TestTransport_ShutdownDrainsPendingWithError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	tr := New(client, mkCodec())

	done := make(chan error, 1)
	go func() {
		req := &codec.Message{Meta: codec.Meta{MsgType: codec.MsgTypeCall, MethodName: "Solve"}}
		_, err := tr.Send(context.Background(), req, false)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	server.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending send was never drained after shutdown")
	}
	assert.False(t, tr.Reusable())
}

func TestTransport_OnewaySendsNoSeqIDWait(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	recvd := make(chan struct{})
	go func() {
		r := bufio.NewReader(server)
		_, dec := mkCodec().MakeCodec(r, server)
		_, err := dec.Decode(context.Background(), r)
		assert.NoError(t, err)
		close(recvd)
	}()

	tr := New(client, mkCodec())
	req := &codec.Message{Meta: codec.Meta{MsgType: codec.MsgTypeOneway, MethodName: "Notify"}}
	reply, err := tr.Send(context.Background(), req, true)
	require.NoError(t, err)
	assert.Nil(t, reply)

	select {
	case <-recvd:
	case <-time.After(time.Second):
		t.Fatal("server never received the oneway message")
	}
}
