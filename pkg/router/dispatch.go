package router

import (
	"sync"

	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/service"
)

// Handler is the server-side unit a Router ultimately dispatches to: an
// opaque, type-erased service call over already-decoded request/response
// bytes, since the router itself is IDL-agnostic (spec §1 excludes IDL
// codegen from this core).
type Handler func(cx *rpcinfo.Context, payload []byte) ([]byte, error)

// ServiceRouter pairs a Router with its RouteID -> Handler table, giving
// pkg/server one call (Dispatch) per decoded request regardless of
// whether the method came from a Thrift method_name or a gRPC path
// (spec §4.I "Router: keyed on the decoded method name ... or path").
type ServiceRouter struct {
	routes *Router

	mu       sync.RWMutex
	handlers map[RouteID]Handler
}

func NewServiceRouter() *ServiceRouter {
	return &ServiceRouter{routes: New(), handlers: make(map[RouteID]Handler)}
}

// Handle registers key with h. Returns an error on a duplicate key
// (spec §4.M, startup-time configuration error).
func (s *ServiceRouter) Handle(key string, h Handler) error {
	id, err := s.routes.Register(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()
	return nil
}

// Dispatch resolves key to a Handler and invokes it. An unmatched key
// surfaces as Application(UnknownMethod) for Thrift or is converted by
// the gRPC adapter into Unimplemented (spec §4.I).
func (s *ServiceRouter) Dispatch(cx *rpcinfo.Context, key string, payload []byte) ([]byte, error) {
	id, ok := s.routes.Lookup(key)
	if !ok {
		return nil, rpcerr.Application(rpcerr.CodeUnknownMethod, "no route for "+key)
	}
	s.mu.RLock()
	h, ok := s.handlers[id]
	s.mu.RUnlock()
	if !ok {
		return nil, rpcerr.Application(rpcerr.CodeUnknownMethod, "no handler for "+key)
	}
	return h(cx, payload)
}

// AsService adapts s into a service.Service[[]byte, []byte] so it can sit
// directly at the bottom of pkg/server's composed stack, keyed by
// cx.Info.Method (spec §4.I "router (if multi-service) -> codec service").
func (s *ServiceRouter) AsService() service.Service[[]byte, []byte] {
	return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
		if cx.Info == nil {
			return nil, rpcerr.Application(rpcerr.CodeUnknownMethod, "router: missing rpc info")
		}
		return s.Dispatch(cx, cx.Info.Method, req)
	})
}
