// Package thriftpp implements the pingpong transport of spec §4.J: one
// outstanding request per connection, a strict Idle->Writing->Awaiting
// ->Idle state cycle, and seq_id assertion on every reply.
package thriftpp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"conduit/pkg/codec"
	"conduit/pkg/rpcerr"
)

// state is the per-connection pingpong state machine of spec §4.J/K.
type state int32

const (
	stateIdle state = iota
	stateWriting
	stateAwaiting
	stateClosed
)

// Transport drives one connection through its request/response cycle.
// It satisfies pkg/pool.Transport so the pool can manage it directly.
type Transport struct {
	conn net.Conn
	r    *bufio.Reader
	enc  codec.Encoder
	dec  codec.Decoder

	mu        sync.Mutex
	st        state
	reusable  bool
}

// New wraps conn with the encoder/decoder pair mk builds, starting in
// the Idle state.
func New(conn net.Conn, mk codec.MakeCodec) *Transport {
	r := bufio.NewReader(conn)
	enc, dec := mk.MakeCodec(r, conn)
	return &Transport{conn: conn, r: r, enc: enc, dec: dec, st: stateIdle, reusable: true}
}

// Send writes msg and, unless oneway, blocks for the matching reply,
// asserting seq_id equality (spec §4.J). Any decode/encode error, or a
// seq_id mismatch, marks the transport non-reusable: the connection's
// framing can no longer be trusted.
func (t *Transport) Send(ctx context.Context, msg *codec.Message, oneway bool) (*codec.Message, error) {
	t.mu.Lock()
	if t.st != stateIdle {
		t.mu.Unlock()
		return nil, rpcerr.Transport(rpcerr.CodeConnectionReset, "pingpong transport is not idle")
	}
	t.st = stateWriting
	t.mu.Unlock()

	if err := t.enc.Encode(ctx, t.conn, msg); err != nil {
		t.markNonReusable(stateClosed)
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "pingpong encode failed")
	}

	if oneway {
		t.mu.Lock()
		t.st = stateIdle
		t.mu.Unlock()
		return nil, nil
	}

	t.mu.Lock()
	t.st = stateAwaiting
	t.mu.Unlock()

	reply, err := t.dec.Decode(ctx, t.r)
	if err != nil {
		t.markNonReusable(stateClosed)
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "pingpong decode failed")
	}
	if reply.Meta.SeqID != msg.Meta.SeqID {
		t.markNonReusable(stateClosed)
		return nil, rpcerr.Protocol(rpcerr.CodeBadSequenceID, fmt.Sprintf("seq_id mismatch: sent %d, got %d", msg.Meta.SeqID, reply.Meta.SeqID))
	}

	t.mu.Lock()
	t.st = stateIdle
	t.mu.Unlock()
	return reply, nil
}

func (t *Transport) markNonReusable(next state) {
	t.mu.Lock()
	t.st = next
	t.reusable = false
	t.mu.Unlock()
}

// Reusable implements pkg/pool.Transport (spec §4.G invariant i: at most
// one in-flight request per pingpong entry, enforced above by the state
// check in Send; this reports whether the connection may be checked out
// again at all).
func (t *Transport) Reusable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reusable && t.st == stateIdle
}

func (t *Transport) Close() error {
	t.markNonReusable(stateClosed)
	return t.conn.Close()
}
