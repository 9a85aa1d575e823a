// Package loadbalance implements the LoadBalance/Picker abstraction of
// spec §4.F: a picker cache keyed by the Discover's grouping key, rebuilt
// incrementally on add/remove and fully on update (SPEC_FULL.md §13
// OQ-1), plus every built-in strategy spec §4.F names.
package loadbalance

import (
	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// Picker is a stateful or cyclic producer of addresses derived from one
// Instance snapshot (spec §3 "Picker"). Next returns false once the
// picker has nothing left to offer (e.g. an empty instance set); cyclic
// strategies never do.
type Picker interface {
	Next(cx *rpcinfo.Context) (rpcaddr.Address, bool)
}

// Strategy builds a fresh Picker from a weighted instance set. Instances
// with weight 0 are never selected (spec §3 invariant 2); the set is
// passed in unfiltered, and each built-in strategy's NewPicker drops
// them with NonZeroWeight.
type Strategy interface {
	NewPicker(instances []discovery.Instance) Picker
}

// IncrementalPicker is implemented by strategies whose Picker can splice
// an add/remove Change in place instead of rebuilding from scratch
// (spec §4.F, SPEC_FULL.md §13 OQ-1 — currently only ConsistentHash).
type IncrementalPicker interface {
	Picker
	ApplyIncremental(added, removed []discovery.Instance) Picker
}

// NonZeroWeight returns the subset of instances with weight > 0.
func NonZeroWeight(instances []discovery.Instance) []discovery.Instance {
	out := make([]discovery.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Weight > 0 {
			out = append(out, inst)
		}
	}
	return out
}
