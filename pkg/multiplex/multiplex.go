// Package multiplex implements the multiplex transport of spec §4.K: a
// single connection serving many concurrent requests, demultiplexed by
// seq_id through a sharded table of one-shot channels.
package multiplex

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"conduit/pkg/codec"
	"conduit/pkg/rpcerr"
)

const shardCount = 64

type pending struct {
	ch chan result
}

type result struct {
	msg *codec.Message
	err error
}

type shard struct {
	mu      sync.Mutex
	waiters map[int32]*pending
}

// Transport carries many concurrent requests over one connection (spec
// §4.K). A background reader goroutine dispatches replies by seq_id to
// the waiter that registered for it; the sender side serializes writes
// under sendMu so frames are never interleaved (spec §4.K "writer state
// Idle -> Writing -> Idle").
type Transport struct {
	conn net.Conn
	enc  codec.Encoder

	sendMu sync.Mutex
	nextID atomic.Int32

	shards [shardCount]*shard

	closed   atomic.Bool
	reusable atomic.Bool
	done     chan struct{}
}

// New wraps conn, builds the encoder/decoder pair from mk, and starts
// the background reader/dispatcher goroutine.
func New(conn net.Conn, mk codec.MakeCodec) *Transport {
	r := bufio.NewReader(conn)
	enc, dec := mk.MakeCodec(r, conn)

	t := &Transport{conn: conn, enc: enc, done: make(chan struct{})}
	t.reusable.Store(true)
	for i := range t.shards {
		t.shards[i] = &shard{waiters: make(map[int32]*pending)}
	}
	go t.readLoop(r, dec)
	return t
}

func (t *Transport) shardFor(seqID int32) *shard {
	idx := int(uint32(seqID) % shardCount)
	return t.shards[idx]
}

// Send assigns a fresh seq_id, writes msg under the send-mutex, and
// returns a channel-backed future for the matching reply unless oneway.
func (t *Transport) Send(ctx context.Context, msg *codec.Message, oneway bool) (*codec.Message, error) {
	if t.closed.Load() {
		return nil, rpcerr.Transport(rpcerr.CodeConnectionReset, "multiplex transport is closed")
	}

	seqID := t.nextID.Add(1)
	msg.Meta.SeqID = seqID

	var p *pending
	if !oneway {
		p = &pending{ch: make(chan result, 1)}
		sh := t.shardFor(seqID)
		sh.mu.Lock()
		sh.waiters[seqID] = p
		sh.mu.Unlock()
	}

	t.sendMu.Lock()
	err := t.enc.Encode(ctx, t.conn, msg)
	t.sendMu.Unlock()
	if err != nil {
		t.reusable.Store(false)
		if p != nil {
			sh := t.shardFor(seqID)
			sh.mu.Lock()
			delete(sh.waiters, seqID)
			sh.mu.Unlock()
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "multiplex encode failed")
	}

	if oneway {
		return nil, nil
	}

	select {
	case res := <-p.ch:
		return res.msg, res.err
	case <-ctx.Done():
		// spec §5: cancellation drops the one-shot receiver; the reader
		// goroutine discards the late reply without a panic (send on a
		// buffered channel of size 1 with nobody left to read it).
		sh := t.shardFor(seqID)
		sh.mu.Lock()
		delete(sh.waiters, seqID)
		sh.mu.Unlock()
		return nil, rpcerr.Deadline("multiplex call canceled before reply arrived")
	}
}

func (t *Transport) readLoop(r *bufio.Reader, dec codec.Decoder) {
	for {
		msg, err := dec.Decode(context.Background(), r)
		if err != nil {
			t.drain(err)
			return
		}

		sh := t.shardFor(msg.Meta.SeqID)
		sh.mu.Lock()
		p, ok := sh.waiters[msg.Meta.SeqID]
		if ok {
			delete(sh.waiters, msg.Meta.SeqID)
		}
		sh.mu.Unlock()

		if !ok {
			// No waiter: either oneway reply (shouldn't happen) or the
			// caller already canceled and dropped its receiver. Either
			// way the message is discarded, per spec §5.
			continue
		}
		p.ch <- result{msg: msg}
	}
}

// drain completes every still-pending waiter with a connection-reset
// error (spec §4.K "Draining completes all pending one-shots with an
// error") and marks the transport closed/non-reusable.
func (t *Transport) drain(cause error) {
	t.closed.Store(true)
	t.reusable.Store(false)

	drainErr := rpcerr.Wrap(cause, rpcerr.KindTransport, rpcerr.CodeConnectionReset, "multiplex connection closed")
	if cause == io.EOF {
		drainErr = rpcerr.Transport(rpcerr.CodeConnectionReset, "multiplex connection closed: EOF")
	}

	var g errgroup.Group
	for _, sh := range t.shards {
		sh := sh
		g.Go(func() error {
			sh.mu.Lock()
			defer sh.mu.Unlock()
			for seqID, p := range sh.waiters {
				p.ch <- result{err: drainErr}
				delete(sh.waiters, seqID)
			}
			return nil
		})
	}
	_ = g.Wait() // shard drain funcs never return an error
	close(t.done)
}

// Reusable implements pkg/pool.Transport. A multiplex transport stays
// reusable for as long as its reader goroutine is alive (spec §4.G
// invariant ii: seq_id uniqueness is per-connection, enforced by the
// monotonic nextID generator above, so many callers may share one entry
// concurrently).
func (t *Transport) Reusable() bool {
	return t.reusable.Load() && !t.closed.Load()
}

// Close shuts the connection down and waits for the reader goroutine to
// finish draining pending waiters.
func (t *Transport) Close() error {
	err := t.conn.Close()
	t.closed.Store(true)
	t.reusable.Store(false)
	<-t.done
	return err
}
