package rpcinfo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheme names the transport-level security context (spec §3).
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Stats holds the timestamps a call accumulates as it moves through the
// stack, used by logging/metrics/audit hooks (spec §3 Context.stats).
type Stats struct {
	Start      time.Time
	SendStart  time.Time
	RecvStart  time.Time
	End        time.Time
	BizError   error // set by the biz-error middleware, spec §4.I
}

// Context wraps an *RpcInfo plus the single-owner-per-call bookkeeping
// described in spec §3/§5: extensions, the connection-reset flag, the
// wire seq_id and the scheme. It is shared as ClientContext/ServerContext
// by embedding the same struct (spec draws no behavioral distinction
// between them beyond Role, which already lives on RpcInfo).
//
// Context is NOT safe for concurrent mutation from two goroutines; only
// the task that owns the call may write to it (spec §5). It embeds a
// context.Context so cancellation/deadline composes normally with the
// rest of the Go ecosystem.
type Context struct {
	context.Context

	Info     *RpcInfo
	Meta     *MetaInfo
	Stats    Stats
	SeqID    int32
	Scheme   Scheme
	TraceID  string

	mu         *sync.Mutex
	extensions map[string]any
	connReset  *bool
}

// NewContext builds a call-scoped Context around a parent context.Context
// (carrying deadline/cancellation) and a freshly created RpcInfo.
func NewContext(parent context.Context, info *RpcInfo) *Context {
	return &Context{
		Context:    parent,
		Info:       info,
		Meta:       NewMetaInfo(),
		Stats:      Stats{Start: time.Now()},
		Scheme:     SchemeHTTP,
		TraceID:    uuid.NewString(),
		mu:         &sync.Mutex{},
		extensions: make(map[string]any),
		connReset:  new(bool),
	}
}

// Derive returns a shallow copy of c with its embedded context.Context
// swapped for ctx. Info, Meta, the extensions table and the non-reusable
// flag are shared with the original (same logical call), so a deadline
// or cancellation layered on top — e.g. the timeout middleware in
// pkg/service — observes and mutates the same call state the original
// Context does.
func (c *Context) Derive(ctx context.Context) *Context {
	derived := *c
	derived.Context = ctx
	return &derived
}

// RPCTimeout reports the per-call timeout configured on this Context's
// RpcInfo, if any (spec §4.C timeout middleware).
func (c *Context) RPCTimeout() (time.Duration, bool) {
	if c.Info == nil || c.Info.Config.RPCTimeout == nil {
		return 0, false
	}
	return *c.Info.Config.RPCTimeout, true
}

func (c *Context) SetExtension(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extensions[key] = value
}

func (c *Context) Extension(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.extensions[key]
	return v, ok
}

// MarkNonReusable flips the connection-reset flag; the pool (spec §4.G)
// consults this through the transport's Reusable() method, not directly,
// but codecs and transports set it here when they detect `crrst` or a
// decode error on an otherwise-live connection.
func (c *Context) MarkNonReusable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.connReset = true
}

func (c *Context) ConnReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.connReset
}
