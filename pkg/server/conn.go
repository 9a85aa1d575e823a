package server

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"conduit/pkg/codec"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/rpcmetrics"
	"conduit/pkg/service"
)

// servePingpong runs the per-connection pingpong read/dispatch loop (spec
// §4.J server side): decode one request, dispatch it, write the reply,
// repeat. Only one request is ever in flight on a pingpong connection, so
// no send-mutex is needed.
func servePingpong(ctx context.Context, conn net.Conn, mk codec.MakeCodec, svc service.Service[[]byte, []byte], rwTimeout time.Duration, calleeName string, recorder rpcmetrics.Recorder) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	enc, dec := mk.MakeCodec(r, conn)

	for {
		if rwTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(rwTimeout))
		}
		msg, err := dec.Decode(ctx, r)
		if err != nil {
			if rpcerr.KindOf(err) == rpcerr.KindProtocol {
				recorder.CodecDecodeError("pingpong")
			}
			return
		}

		resp, callErr := dispatchOne(ctx, svc, msg, conn, calleeName, recorder)
		if msg.Meta.MsgType == codec.MsgTypeOneway {
			continue
		}

		if rwTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(rwTimeout))
		}
		if err := enc.Encode(ctx, conn, buildReply(msg, resp, callErr)); err != nil {
			return
		}
	}
}

// serveMultiplex runs the per-connection multiplex read/dispatch loop
// (spec §4.K server side): decode requests as fast as they arrive,
// dispatch each on its own goroutine, and serialize replies through
// sendMu so frames never interleave on the wire.
func serveMultiplex(ctx context.Context, conn net.Conn, mk codec.MakeCodec, svc service.Service[[]byte, []byte], rwTimeout time.Duration, calleeName string, recorder rpcmetrics.Recorder) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	enc, dec := mk.MakeCodec(r, conn)

	var sendMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := dec.Decode(ctx, r)
		if err != nil {
			if rpcerr.KindOf(err) == rpcerr.KindProtocol {
				recorder.CodecDecodeError("multiplex")
			}
			return
		}

		wg.Add(1)
		go func(msg *codec.Message) {
			defer wg.Done()
			resp, callErr := dispatchOne(ctx, svc, msg, conn, calleeName, recorder)
			if msg.Meta.MsgType == codec.MsgTypeOneway {
				return
			}

			sendMu.Lock()
			defer sendMu.Unlock()
			if rwTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(rwTimeout))
			}
			_ = enc.Encode(ctx, conn, buildReply(msg, resp, callErr))
		}(msg)
	}
}

// dispatchOne builds the per-call Context from a decoded envelope and
// runs it through the composed server service.
func dispatchOne(ctx context.Context, svc service.Service[[]byte, []byte], msg *codec.Message, conn net.Conn, calleeName string, recorder rpcmetrics.Recorder) ([]byte, error) {
	caller := rpcinfo.NewEndpoint("peer")
	caller.SetFaststrTag("remote_addr", conn.RemoteAddr().String())
	callee := rpcinfo.NewEndpoint(calleeName)

	info := rpcinfo.NewRpcInfo(rpcinfo.RoleServer, caller, callee, msg.Meta.MethodName, rpcinfo.Config{})
	cx := rpcinfo.NewContext(ctx, info)
	cx.Meta.IngestInboundHeaders(msg.Meta.Headers)

	start := time.Now()
	resp, err := svc.Call(cx, msg.Payload)
	recorder.RequestDuration(msg.Meta.MethodName, "server", time.Since(start).Seconds(), err == nil)
	return resp, err
}

// buildReply renders a handler's outcome as the envelope the peer
// expects: a Reply on success, or an Exception carrying the error's
// message and (for a Biz error) its Extra map as headers.
func buildReply(req *codec.Message, payload []byte, err error) *codec.Message {
	if err == nil {
		return &codec.Message{
			Meta:    codec.Meta{SeqID: req.Meta.SeqID, MsgType: codec.MsgTypeReply, MethodName: req.Meta.MethodName},
			Payload: payload,
		}
	}

	var extra map[string]string
	if rerr, ok := err.(*rpcerr.Error); ok {
		extra = rerr.Extra
	}
	return &codec.Message{
		Meta:    codec.Meta{SeqID: req.Meta.SeqID, MsgType: codec.MsgTypeException, MethodName: req.Meta.MethodName, Headers: extra},
		Payload: []byte(err.Error()),
	}
}
