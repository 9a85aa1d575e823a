package server

import (
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/service"
)

// bizErrorLayer tags cx.Stats.BizError when a handler returns a Biz-kind
// error, so observability hooks can read it without re-deriving it from
// the error value (spec §4.I "Biz-error middleware extracts a typed
// business error from the handler's Err and stores it on the context
// stats"). The error itself still propagates unchanged; the connection
// loop is what serializes it as an Exception envelope.
func bizErrorLayer() service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			resp, err := next.Call(cx, req)
			if rerr, ok := err.(*rpcerr.Error); ok && rerr.Kind == rpcerr.KindBiz {
				cx.Stats.BizError = rerr
			}
			return resp, err
		})
	}
}
