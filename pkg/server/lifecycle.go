package server

import (
	"time"

	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/rpclog"
	"conduit/pkg/service"
)

// lifecycleLogLayer logs one structured line per call with its method,
// outcome and duration, the same start/finish/outcome shape the
// teacher's audit entries captured for each service invocation, but
// emitted through rpclog instead of a separate audit backend.
func lifecycleLogLayer() service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next.Call(cx, req)

			method := ""
			if cx.Info != nil {
				method = cx.Info.Method
			}
			outcome := "SUCCESS"
			if err != nil {
				outcome = "FAILURE"
				if rerr, ok := err.(*rpcerr.Error); ok && rerr.Kind == rpcerr.KindBiz {
					outcome = "BIZ_ERROR"
				}
			}

			rpclog.Log.Info("call completed",
				"method", method,
				"outcome", outcome,
				"trace_id", cx.TraceID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return resp, err
		})
	}
}
