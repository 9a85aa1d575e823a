package service

import (
	"context"
	"time"

	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
)

// Timeout races the inner call against cx's configured rpc_timeout
// (spec §4.C). If no timeout is configured the inner service runs
// unmodified. On expiry it returns a Deadline error and the inner call's
// derived context is cancelled — it may still be running, but nothing
// downstream observes its result.
func Timeout[Req, Resp any]() Layer[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return ServiceFunc[Req, Resp](func(cx *rpcinfo.Context, req Req) (Resp, error) {
			var zero Resp

			d, ok := cx.RPCTimeout()
			if !ok {
				return next.Call(cx, req)
			}

			deadlineCtx, cancel := context.WithTimeout(cx, d)
			defer cancel()
			innerCx := cx.Derive(deadlineCtx)

			type outcome struct {
				resp Resp
				err  error
			}
			done := make(chan outcome, 1)
			go func() {
				resp, err := next.Call(innerCx, req)
				done <- outcome{resp, err}
			}()

			select {
			case o := <-done:
				return o.resp, o.err
			case <-deadlineCtx.Done():
				return zero, rpcerr.Deadline("rpc_timeout exceeded")
			}
		})
	}
}
