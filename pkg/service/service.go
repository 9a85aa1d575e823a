// Package service implements the generic call abstraction of spec §4.C:
// a Service[Req,Resp] that any transport (Thrift pingpong/multiplex,
// gRPC) dispatches through, and a ServiceBuilder that composes
// middleware layers around it the way pkg/interceptors chains gRPC
// interceptors, minus the reflection and the grpc.ServerInfo coupling.
package service

import "conduit/pkg/rpcinfo"

// Service is the one call contract every layer of the stack — client
// middleware, server dispatch, transport adapters — speaks. Cx is fixed
// to *rpcinfo.Context rather than left as a type parameter: spec §4.D
// draws no behavioral distinction between a client and server call
// context beyond Role, so there is exactly one Cx in this codebase.
type Service[Req, Resp any] interface {
	Call(cx *rpcinfo.Context, req Req) (Resp, error)
}

// ServiceFunc adapts a plain function to Service, mirroring http.HandlerFunc.
type ServiceFunc[Req, Resp any] func(cx *rpcinfo.Context, req Req) (Resp, error)

func (f ServiceFunc[Req, Resp]) Call(cx *rpcinfo.Context, req Req) (Resp, error) {
	return f(cx, req)
}

// Layer wraps a Service to produce a new Service, same shape as
// pkg/interceptors' UnaryServerInterceptor-around-UnaryHandler pattern.
type Layer[Req, Resp any] func(next Service[Req, Resp]) Service[Req, Resp]

// ServiceBuilder composes a stack of layers around an eventual inner
// service. Layer appends to the outside of the stack (the last Layer
// call becomes the first thing a request passes through); LayerFront
// appends to the inside, closest to the wrapped service.
type ServiceBuilder[Req, Resp any] struct {
	outer []Layer[Req, Resp] // index 0 = outermost
}

func NewServiceBuilder[Req, Resp any]() *ServiceBuilder[Req, Resp] {
	return &ServiceBuilder[Req, Resp]{}
}

// Layer adds l as the new outermost layer.
func (b *ServiceBuilder[Req, Resp]) Layer(l Layer[Req, Resp]) *ServiceBuilder[Req, Resp] {
	b.outer = append([]Layer[Req, Resp]{l}, b.outer...)
	return b
}

// LayerFront adds l as the new innermost layer, directly around the
// service eventually passed to Build.
func (b *ServiceBuilder[Req, Resp]) LayerFront(l Layer[Req, Resp]) *ServiceBuilder[Req, Resp] {
	b.outer = append(b.outer, l)
	return b
}

// Build wraps inner with every accumulated layer, innermost first.
func (b *ServiceBuilder[Req, Resp]) Build(inner Service[Req, Resp]) Service[Req, Resp] {
	svc := inner
	for i := len(b.outer) - 1; i >= 0; i-- {
		svc = b.outer[i](svc)
	}
	return svc
}

// BoxCloneService erases the concrete Service implementation behind a
// plain function pointer. Since every Service in this stack is already
// a thin interface value over shared, goroutine-safe state, "cloning"
// it is just copying the struct — there is no per-clone resource to
// duplicate, matching spec §4.C's "preserves clonability" requirement
// without needing Rust's Box<dyn Clone> machinery.
type BoxCloneService[Req, Resp any] struct {
	call func(cx *rpcinfo.Context, req Req) (Resp, error)
}

func BoxClone[Req, Resp any](s Service[Req, Resp]) BoxCloneService[Req, Resp] {
	return BoxCloneService[Req, Resp]{call: s.Call}
}

func (b BoxCloneService[Req, Resp]) Call(cx *rpcinfo.Context, req Req) (Resp, error) {
	return b.call(cx, req)
}

func (b BoxCloneService[Req, Resp]) Clone() BoxCloneService[Req, Resp] {
	return b
}
