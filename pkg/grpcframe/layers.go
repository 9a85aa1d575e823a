package grpcframe

import (
	"conduit/pkg/rpcinfo"
	"conduit/pkg/service"
)

// UserAgentLayer stamps a client-identifying user-agent transient header
// on every outbound gRPC call, mirroring connect-go's own UserAgent
// interceptor (SPEC_FULL.md §12 "gRPC CORS/UserAgent layers"). Transient
// rather than persistent: it describes this hop's client, not something
// a downstream callee should keep re-forwarding.
func UserAgentLayer(userAgent string) service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			cx.Meta.SetTransient("user-agent", userAgent)
			return next.Call(cx, req)
		})
	}
}

// CORSLayer reflects the configured allow-origin/allow-methods pair back
// to the caller as backward metadata, for gRPC-Web browser clients
// fronting this server (SPEC_FULL.md §12). It never rejects a request:
// CORS preflight itself belongs to the HTTP transport adapter, not this
// service-level layer.
func CORSLayer(allowOrigin, allowMethods string) service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			cx.Meta.SetBackward("access-control-allow-origin", allowOrigin)
			cx.Meta.SetBackward("access-control-allow-methods", allowMethods)
			return next.Call(cx, req)
		})
	}
}
