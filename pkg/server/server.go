// Package server implements the server stack of spec §4.I: a listener
// that accepts connections over any rpctransport.Make, speaks either the
// pingpong or multiplex framing per connection, and dispatches decoded
// calls through a composed Service[[]byte,[]byte] stack down to
// per-method handlers registered in a router.ServiceRouter.
//
// Composition (outer to inner), mirrored from pkg/client:
//
//	trace -> catch-panic -> user outer layers -> router dispatch -> (per
//	route: lifecycle log -> biz-error middleware -> user inner layers ->
//	handler)
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conduit/pkg/codec"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/rpclog"
	"conduit/pkg/rpcmetrics"
	"conduit/pkg/rpctrace"
	"conduit/pkg/router"
	"conduit/pkg/rpctransport"
	"conduit/pkg/service"
)

// Options configures a Server. ServiceName and ListenAddr are required.
type Options struct {
	ServiceName string
	ListenAddr  rpcaddr.Address

	Transport     rpctransport.Make // defaults to NetMake
	TransportKind string           // "pingpong" or "multiplex"; defaults to "multiplex"
	Codec         codec.MakeCodec  // defaults to a length-framed base Thrift codec

	ReadWriteTimeout time.Duration // defaults to 30s; 0 after setDefaults means "apply default", not "no timeout"

	// TracerProvider builds the span-per-call hook wrapping the whole
	// composed call (spec §10.5). Defaults to the otel noop provider.
	TracerProvider trace.TracerProvider
	// Recorder receives codec decode-error and request-duration reports
	// (spec §10.4). Defaults to rpcmetrics.Noop.
	Recorder rpcmetrics.Recorder

	OuterLayers []service.Layer[[]byte, []byte]
	InnerLayers []service.Layer[[]byte, []byte] // applied to every route registered via Handle
}

func (o *Options) setDefaults() {
	if o.Transport == nil {
		o.Transport = rpctransport.NetMake{}
	}
	if o.TransportKind == "" {
		o.TransportKind = "multiplex"
	}
	if o.Codec == nil {
		o.Codec = codec.NewFramedCodec(codec.NewBaseCodec())
	}
	if o.ReadWriteTimeout == 0 {
		o.ReadWriteTimeout = 30 * time.Second
	}
	if o.Recorder == nil {
		o.Recorder = rpcmetrics.Noop
	}
}

// Server accepts connections for one service and dispatches calls by
// method name to handlers registered with Handle.
type Server struct {
	opts     Options
	router   *router.ServiceRouter
	svc      service.Service[[]byte, []byte]
	listener net.Listener
	wg       sync.WaitGroup
	closing  atomic.Bool
}

// New builds a Server over opts, defaulting anything left unset. The
// returned Server has no routes; call Handle before Serve.
func New(opts Options) (*Server, error) {
	if opts.ServiceName == "" {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "server: ServiceName is required")
	}
	opts.setDefaults()

	s := &Server{opts: opts, router: router.NewServiceRouter()}

	hook := rpctrace.NewHook(opts.TracerProvider)

	b := service.NewServiceBuilder[[]byte, []byte]()
	b.LayerFront(traceLayer(hook))
	b.LayerFront(service.CatchPanic[[]byte, []byte]())
	for _, l := range opts.OuterLayers {
		b.LayerFront(l)
	}
	s.svc = b.Build(s.router.AsService())

	return s, nil
}

// traceLayer wraps the whole composed server call in a span (spec
// §10.5), the outermost layer so it covers catch-panic and every inner
// layer's latency too.
func traceLayer(hook *rpctrace.Hook) service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			var resp []byte
			err := hook.Wrap(cx, func(cx *rpcinfo.Context) error {
				var callErr error
				resp, callErr = next.Call(cx, req)
				return callErr
			})
			return resp, err
		})
	}
}

// Handle registers h for method, wrapping it with the biz-error
// middleware and any configured InnerLayers (spec §4.I per-route
// composition).
func (s *Server) Handle(method string, h router.Handler) error {
	b := service.NewServiceBuilder[[]byte, []byte]()
	b.LayerFront(lifecycleLogLayer())
	b.LayerFront(bizErrorLayer())
	for _, l := range s.opts.InnerLayers {
		b.LayerFront(l)
	}

	wrapped := b.Build(service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
		return h(cx, req)
	}))

	return s.router.Handle(method, func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return wrapped.Call(cx, payload)
	})
}

// Serve listens on opts.ListenAddr and accepts connections until ctx is
// cancelled or Shutdown is called. It blocks until the accept loop ends.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := s.opts.Transport.Listen(ctx, s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = lis

	rpclog.Log.Info("server listening", "service", s.opts.ServiceName, "addr", s.opts.ListenAddr.String(), "transport", s.opts.TransportKind)

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.opts.TransportKind == "pingpong" {
				servePingpong(ctx, conn, s.opts.Codec, s.svc, s.opts.ReadWriteTimeout, s.opts.ServiceName, s.opts.Recorder)
			} else {
				serveMultiplex(ctx, conn, s.opts.Codec, s.svc, s.opts.ReadWriteTimeout, s.opts.ServiceName, s.opts.Recorder)
			}
		}()
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// connections to finish, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
