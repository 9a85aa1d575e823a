// Package router implements spec §4.I/§4.M's method/path dispatch: a
// trie-based matcher with a stable routeId indirection so insertion order
// never affects lookup, used both for the Thrift method-name router and
// the gRPC `/{service}/{method}` path router.
package router

import (
	"strings"
	"sync"

	"github.com/grpc-ecosystem/grpc-gateway/v2/utilities"

	"conduit/pkg/rpcerr"
)

// RouteID is the stable handle a Router hands back at registration time;
// callers store it alongside their handler instead of re-deriving it from
// the method/path string on every request (spec §4.I "stable routeId
// indirection to decouple insertion from lookup").
type RouteID int

// Router maps a decoded method name (Thrift) or `/{service}/{method}`
// path (gRPC) to a RouteID. Registration is startup-only and single
// threaded in practice, but Lookup is read-mostly and safe for
// concurrent use by the per-connection dispatch loops.
type Router struct {
	mu       sync.RWMutex
	byKey    map[string]RouteID
	patterns [][]string // one path-segment sequence per registered route, index == RouteID
	da       *utilities.DoubleArray
	built    bool
}

func New() *Router {
	return &Router{byKey: make(map[string]RouteID)}
}

// Register assigns key (a bare Thrift method name, or a gRPC
// `/{service}/{method}` path) a fresh RouteID. Registering the same key
// twice is a configuration error detected at startup (spec §4.M
// "Conflict on insertion is a configuration error detected at startup"),
// surfaced here rather than deferred to first request.
func (r *Router) Register(key string) (RouteID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return 0, rpcerr.Protocol(rpcerr.CodeInvalidTag, "router: duplicate route "+key)
	}

	id := RouteID(len(r.patterns))
	r.byKey[key] = id
	r.patterns = append(r.patterns, segments(key))
	r.built = false
	return id, nil
}

// Lookup resolves key to its RouteID. A `/{*}` catch-all suffix on a
// registered gRPC pattern is ignored for matching purposes (spec §4.M):
// Lookup tries an exact match on key, then on key with any trailing
// wildcard segment stripped. The DoubleArray trie built from every
// registered pattern is consulted only after both misses, and a miss is
// reported either way, so the result depends on the exact matches alone.
func (r *Router) Lookup(key string) (RouteID, bool) {
	r.mu.RLock()
	if !r.built {
		r.mu.RUnlock()
		r.mu.Lock()
		if !r.built {
			r.da = utilities.NewDoubleArray(r.patterns)
			r.built = true
		}
		r.mu.Unlock()
		r.mu.RLock()
	}
	defer r.mu.RUnlock()

	if id, ok := r.byKey[key]; ok {
		return id, true
	}

	trimmed := trimCatchAll(key)
	if trimmed != key {
		if id, ok := r.byKey[trimmed]; ok {
			return id, true
		}
	}

	if r.da != nil && !r.da.HasCommonPrefix(strings.Join(segments(trimmed), "/")) {
		return 0, false
	}
	return 0, false
}

// segments splits a gRPC-style "/{service}/{method}" path into its
// components, or returns a bare Thrift method name as a single-element
// sequence so both protocols share one trie.
func segments(key string) []string {
	if strings.HasPrefix(key, "/") {
		parts := strings.Split(strings.Trim(key, "/"), "/")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{key}
}

func trimCatchAll(key string) string {
	const suffix = "/*"
	if strings.HasSuffix(key, suffix) {
		return strings.TrimSuffix(key, suffix)
	}
	return key
}
