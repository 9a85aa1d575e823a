package rpctrace

import "conduit/pkg/rpcinfo"

// CallFunc is the minimal call shape rpctrace needs to wrap without
// importing pkg/service (which would create an import cycle, since
// pkg/service is lower in the stack than the client/server composition
// that wires tracing in). pkg/client and pkg/server adapt their
// Service[Req,Resp].Call through this when building the outer layer.
type CallFunc func(cx *rpcinfo.Context) error

// Wrap runs call inside a span started from h, propagating call's error
// into the span's status (spec §10.5).
func (h *Hook) Wrap(cx *rpcinfo.Context, call CallFunc) error {
	_, finish := h.StartCall(cx, cx)
	err := call(cx)
	finish(err)
	return err
}
