// Package discovery implements the Discover abstraction of spec §4.E: a
// source of Instances for an endpoint, optionally pushing Change events
// so load balancers rebuild their Picker without polling.
package discovery

import (
	"context"

	"conduit/pkg/rpcaddr"
)

// Instance is one selectable endpoint publication (spec §3). It is
// immutable after construction; callers share it by value since it is
// small and safe to copy.
type Instance struct {
	Address rpcaddr.Address
	Weight  uint32
	Tags    map[string]string
}

// Change is one discovery update for key K (spec §3), published on the
// channel returned by Discover.Watch.
type Change[K comparable] struct {
	Key     K
	Added   []Instance
	Updated []Instance
	Removed []Instance
}

// Discover is implemented by every instance source the client stack can
// resolve an endpoint through (spec §4.E).
type Discover[K comparable] interface {
	// Discover returns the current ordered set of instances for endpoint.
	Discover(ctx context.Context, endpoint string) ([]Instance, error)
	// Key returns a cheap, deterministic grouping key for endpoint, used
	// by the load-balance picker cache and by Watch's Change stream.
	Key(endpoint string) K
	// Watch returns a receive-only channel of Change events, or (nil,
	// false) if this Discover variant never pushes updates (e.g. Static).
	// Callers that get a channel MUST subscribe and rebalance (spec §4.E).
	Watch(ctx context.Context, endpoint string) (<-chan Change[K], bool)
}
