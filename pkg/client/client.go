// Package client implements the client stack of spec §4.H: discovery,
// load-balance and the connection pool composed with user middleware and
// the codec layer behind a single call entry point, the way the teacher's
// pkg/interceptors chains a gRPC client's unary interceptors.
//
// Composition (outer to inner): trace -> user outer layers -> discovery+LB layer
// -> user inner layers -> meta middleware -> timeout middleware -> codec
// service -> pooled transport.
package client

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conduit/pkg/codec"
	"conduit/pkg/discovery"
	"conduit/pkg/loadbalance"
	"conduit/pkg/multiplex"
	"conduit/pkg/pool"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
	"conduit/pkg/rpcmetrics"
	"conduit/pkg/rpctrace"
	"conduit/pkg/rpctransport"
	"conduit/pkg/service"
	"conduit/pkg/thriftpp"
)

const (
	extTargetAddr   = "client.target_addr"
	extReplyHeaders = "client.reply_headers"
)

// Options configures a Client. ServiceName and Discover are required;
// everything else falls back to a usable default so a caller can build a
// minimal Client for a Static discovery set with two lines.
type Options struct {
	// ServiceName identifies the callee for discovery, the pool key and
	// the caller-side RpcInfo Endpoint.
	ServiceName string
	CallerName  string // identifies this client in the caller Endpoint; defaults to "client"
	Discover    discovery.Discover[string]
	Strategy    loadbalance.Strategy // defaults to RoundRobinStrategy

	Codec         codec.MakeCodec  // defaults to a length-framed base Thrift codec
	Transport     rpctransport.Make // defaults to NetMake
	TransportKind string           // "pingpong" or "multiplex"; defaults to "multiplex"

	Pool           *pool.Pool // defaults to a Pool with the timeouts below
	PoolIdleTimeout time.Duration
	PoolSweep       time.Duration

	ConnectTimeout time.Duration
	RPCTimeout     time.Duration
	RetryCount     int

	// TracerProvider builds the span-per-call hook wrapping the whole
	// composed call (spec §10.5). Defaults to the otel noop provider.
	TracerProvider trace.TracerProvider
	// Recorder receives pool/picker/codec gauges and counters (spec
	// §10.4). Defaults to rpcmetrics.Noop.
	Recorder rpcmetrics.Recorder

	OuterLayers []service.Layer[[]byte, []byte]
	InnerLayers []service.Layer[[]byte, []byte]
}

func (o *Options) setDefaults() {
	if o.CallerName == "" {
		o.CallerName = "client"
	}
	if o.Strategy == nil {
		o.Strategy = loadbalance.RoundRobinStrategy{}
	}
	if o.Codec == nil {
		o.Codec = codec.NewFramedCodec(codec.NewBaseCodec())
	}
	if o.Transport == nil {
		o.Transport = rpctransport.NetMake{}
	}
	if o.TransportKind == "" {
		o.TransportKind = "multiplex"
	}
	if o.PoolIdleTimeout == 0 {
		o.PoolIdleTimeout = 90 * time.Second
	}
	if o.PoolSweep == 0 {
		o.PoolSweep = time.Minute
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = time.Second
	}
	if o.RPCTimeout == 0 {
		o.RPCTimeout = 5 * time.Second
	}
	if o.Pool == nil {
		o.Pool = pool.New(o.PoolIdleTimeout, o.PoolSweep)
	}
	if o.Recorder == nil {
		o.Recorder = rpcmetrics.Noop
	}
}

// Client is the composed call entry point for one callee service.
type Client struct {
	opts Options
	lb   *loadbalance.LoadBalance
	svc  service.Service[[]byte, []byte]
	seq  atomic.Int32
}

// New builds a Client over opts, defaulting anything left unset.
func New(opts Options) (*Client, error) {
	if opts.ServiceName == "" {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "client: ServiceName is required")
	}
	if opts.Discover == nil {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "client: Discover is required")
	}
	opts.setDefaults()
	opts.Pool.SetRecorder(opts.Recorder)

	c := &Client{opts: opts, lb: loadbalance.New(opts.Strategy, opts.Discover)}

	cs := &codecService{
		pool:          opts.Pool,
		mk:            opts.Codec,
		transport:     opts.Transport,
		transportKind: opts.TransportKind,
		serviceName:   opts.ServiceName,
		seq:           &c.seq,
		recorder:      opts.Recorder,
	}

	hook := rpctrace.NewHook(opts.TracerProvider)

	b := service.NewServiceBuilder[[]byte, []byte]()
	b.LayerFront(traceLayer(hook))
	for _, l := range opts.OuterLayers {
		b.LayerFront(l)
	}
	b.LayerFront(discoveryLBLayer(c.lb, opts.ServiceName, opts.RetryCount, opts.Recorder))
	for _, l := range opts.InnerLayers {
		b.LayerFront(l)
	}
	b.LayerFront(metaLayer())
	b.LayerFront(service.Timeout[[]byte, []byte]())
	b.LayerFront(codecLayer(cs))

	c.svc = b.Build(service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "client: no transport layer installed")
	}))
	return c, nil
}

// Call invokes method against the callee with req, applying opts.
func (c *Client) Call(ctx context.Context, method string, req []byte, opts ...CallOpt) ([]byte, error) {
	return c.call(ctx, method, req, mergeCallOpts(opts))
}

// WithCallOpt binds opts to a OneShotService that consumes them exactly
// once (spec §4.H).
func (c *Client) WithCallOpt(opts ...CallOpt) *OneShotService {
	return &OneShotService{client: c, opt: mergeCallOpts(opts)}
}

func (c *Client) call(ctx context.Context, method string, req []byte, opt CallOpt) ([]byte, error) {
	cfg := rpcinfo.Config{RPCTimeout: durPtr(c.opts.RPCTimeout), ConnectTimeout: durPtr(c.opts.ConnectTimeout)}.Merge(opt.config)

	caller := rpcinfo.NewEndpoint(c.opts.CallerName)
	for k, v := range opt.tags {
		caller.SetTag(k, v)
	}
	callee := rpcinfo.NewEndpoint(c.opts.ServiceName)

	info := rpcinfo.NewRpcInfo(rpcinfo.RoleClient, caller, callee, method, cfg)
	cx := rpcinfo.NewContext(ctx, info)

	if opt.address != nil {
		cx.SetExtension(extTargetAddr, *opt.address)
	}

	return c.svc.Call(cx, req)
}

func durPtr(d time.Duration) *time.Duration { return &d }

// discoveryLBLayer resolves a target Address for each call unless one was
// already pinned by a CallOpt, retrying across the picker on transient
// transport failures (spec §4.F Retry, §4.H discovery+LB layer).
func discoveryLBLayer(lb *loadbalance.LoadBalance, serviceName string, retryCount int, recorder rpcmetrics.Recorder) service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			if _, ok := cx.Extension(extTargetAddr); ok {
				return next.Call(cx, req)
			}

			picker, err := lb.GetPicker(cx, serviceName)
			if err != nil {
				return nil, err
			}
			return loadbalance.Retry(picker, cx, retryCount, func(addr rpcaddr.Address) ([]byte, error) {
				recorder.PickerSelected(serviceName, addr.String())
				cx.SetExtension(extTargetAddr, addr)
				return next.Call(cx, req)
			})
		})
	}
}

// traceLayer wraps the whole composed call in a span (spec §10.5), the
// outermost layer so the span covers every inner layer's latency too.
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

// metaLayer ingests backward metadata the codec layer stashed on the
// context extensions after a successful reply (spec §4.D step 3, §4.H
// meta middleware).
func metaLayer() service.Layer[[]byte, []byte] {
	return func(next service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return service.ServiceFunc[[]byte, []byte](func(cx *rpcinfo.Context, req []byte) ([]byte, error) {
			resp, err := next.Call(cx, req)
			if headers, ok := cx.Extension(extReplyHeaders); ok {
				if h, ok := headers.(map[string]string); ok {
					cx.Meta.IngestBackwardHeaders(h)
				}
			}
			return resp, err
		})
	}
}

func codecLayer(cs *codecService) service.Layer[[]byte, []byte] {
	return func(service.Service[[]byte, []byte]) service.Service[[]byte, []byte] {
		return cs
	}
}

// sender is satisfied by both pkg/thriftpp.Transport and
// pkg/multiplex.Transport; the codec service dispatches through it
// without caring which one backs a given pooled entry.
type sender interface {
	Send(ctx context.Context, msg *codec.Message, oneway bool) (*codec.Message, error)
}

// codecService is the innermost client-side layer: it resolves a pooled
// transport for the address the discovery+LB layer attached to cx, builds
// the envelope, and dispatches (spec §4.H "codec service -> pooled
// transport").
type codecService struct {
	pool          *pool.Pool
	mk            codec.MakeCodec
	transport     rpctransport.Make
	transportKind string
	serviceName   string
	seq           *atomic.Int32
	recorder      rpcmetrics.Recorder
}

func (cs *codecService) Call(cx *rpcinfo.Context, req []byte) ([]byte, error) {
	start := time.Now()
	resp, err := cs.call(cx, req)
	cs.recorder.RequestDuration(cx.Info.Method, cs.transportKind, time.Since(start).Seconds(), err == nil)
	if err != nil && rpcerr.KindOf(err) == rpcerr.KindProtocol {
		cs.recorder.CodecDecodeError(cs.transportKind)
	}
	return resp, err
}

func (cs *codecService) call(cx *rpcinfo.Context, req []byte) ([]byte, error) {
	v, ok := cx.Extension(extTargetAddr)
	if !ok {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "codec service: no target address resolved")
	}
	addr := v.(rpcaddr.Address)

	key := pool.Key{Service: cs.serviceName, Addr: addr.String(), Kind: cs.transportKind}
	connectTimeout := time.Second
	if cx.Info != nil && cx.Info.Config.ConnectTimeout != nil {
		connectTimeout = *cx.Info.Config.ConnectTimeout
	}

	pooled, err := cs.pool.Get(cx, key, func(dialCtx context.Context) (pool.Transport, error) {
		conn, err := cs.transport.Dial(dialCtx, addr, connectTimeout)
		if err != nil {
			return nil, err
		}
		if cs.transportKind == "pingpong" {
			return thriftpp.New(conn, cs.mk), nil
		}
		return multiplex.New(conn, cs.mk), nil
	})
	if err != nil {
		return nil, err
	}
	defer pooled.Release()

	snd, ok := pooled.Transport.(sender)
	if !ok {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "codec service: transport does not support Send")
	}

	msg := &codec.Message{
		Meta: codec.Meta{
			SeqID:      cs.seq.Add(1),
			MsgType:    codec.MsgTypeCall,
			MethodName: cx.Info.Method,
			Headers:    cx.Meta.OutboundHeaders(),
		},
		Payload: req,
	}

	reply, err := snd.Send(cx, msg, false)
	if err != nil {
		if rerr, ok := err.(*rpcerr.Error); ok && !rerr.Reusable() {
			cx.MarkNonReusable()
		}
		return nil, err
	}

	if reply.Meta.MsgType == codec.MsgTypeException {
		return nil, rpcerr.Biz(0, string(reply.Payload), reply.Meta.Headers)
	}

	cx.SetExtension(extReplyHeaders, reply.Meta.Headers)
	return reply.Payload, nil
}
