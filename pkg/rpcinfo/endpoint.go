// Package rpcinfo implements the per-call context and metadata model of
// spec §3/§4.D: Endpoint, RpcInfo, Config, the Client/ServerContext
// wrapper and the scoped MetaInfo store with its three forwarding
// namespaces.
package rpcinfo

import (
	"sync"

	"conduit/pkg/rpcaddr"
)

// Role distinguishes which side of the call a Context represents.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Endpoint names one side of an RPC (spec §3). It is mutable and owned by
// the RpcInfo it belongs to; tags/faststrTags are typed maps keyed by
// short interned strings in the original design, here plain Go maps since
// the framework does not need the original's string-interning trick.
type Endpoint struct {
	mu          sync.RWMutex
	serviceName string
	address     *rpcaddr.Address
	tags        map[string]any
	faststrTags map[string]string
}

// NewEndpoint creates a named endpoint with no address yet assigned (the
// common case for a server-side callee resolved later by discovery).
func NewEndpoint(serviceName string) *Endpoint {
	return &Endpoint{
		serviceName: serviceName,
		tags:        make(map[string]any),
		faststrTags: make(map[string]string),
	}
}

func (e *Endpoint) ServiceName() string { return e.serviceName }

func (e *Endpoint) Address() (rpcaddr.Address, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.address == nil {
		return rpcaddr.Address{}, false
	}
	return *e.address, true
}

// SetAddress updates the endpoint's resolved address. Used by the TTHeader
// codec when `trans-remote-addr` is observed on decode (spec §4.B/§4.D).
func (e *Endpoint) SetAddress(addr rpcaddr.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.address = &addr
}

func (e *Endpoint) SetTag(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tags[key] = value
}

func (e *Endpoint) Tag(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.tags[key]
	return v, ok
}

func (e *Endpoint) SetFaststrTag(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faststrTags[key] = value
}

func (e *Endpoint) FaststrTag(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.faststrTags[key]
	return v, ok
}

// FaststrTags returns a shallow copy of every faststr tag.
func (e *Endpoint) FaststrTags() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.faststrTags))
	for k, v := range e.faststrTags {
		out[k] = v
	}
	return out
}
