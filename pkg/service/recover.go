package service

import (
	"fmt"
	"runtime/debug"

	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/rpclog"
)

// CatchPanic recovers a panic from the inner service, converts it to an
// Application(InternalServerError) error and logs it once with the call's
// method and trace id (spec §4.C catch-panic middleware). Without this
// layer a panicking handler would take down the whole server loop; with
// it, the panic becomes an ordinary error response on this one call.
func CatchPanic[Req, Resp any]() Layer[Req, Resp] {
	return func(next Service[Req, Resp]) Service[Req, Resp] {
		return ServiceFunc[Req, Resp](func(cx *rpcinfo.Context, req Req) (resp Resp, err error) {
			defer func() {
				if r := recover(); r != nil {
					method := ""
					if cx.Info != nil {
						method = cx.Info.Method
					}
					rpclog.Log.Error("recovered panic in service call",
						"method", method,
						"trace_id", cx.TraceID,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					err = rpcerr.Application(rpcerr.CodeInternalServer, fmt.Sprintf("panic: %v", r))
				}
			}()
			return next.Call(cx, req)
		})
	}
}
