package loadbalance

import (
	"math/rand/v2"

	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// RandomStrategy samples one instance uniformly at random per call
// (spec §4.F "Random"). An empty instance set yields a Retry-eligible
// miss rather than a panic.
type RandomStrategy struct{}

func (RandomStrategy) NewPicker(instances []discovery.Instance) Picker {
	return &randomPicker{instances: NonZeroWeight(instances)}
}

type randomPicker struct {
	instances []discovery.Instance
}

func (p *randomPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	if len(p.instances) == 0 {
		return rpcaddr.Address{}, false
	}
	return p.instances[rand.IntN(len(p.instances))].Address, true
}

// WeightedRandomStrategy samples proportional to weight (spec §4.F
// "Weighted Random"): builds a cumulative-weight table once per picker
// and binary-searches a uniform draw into it.
type WeightedRandomStrategy struct{}

func (WeightedRandomStrategy) NewPicker(instances []discovery.Instance) Picker {
	nz := NonZeroWeight(instances)
	cumulative := make([]uint64, len(nz))
	var total uint64
	for i, inst := range nz {
		total += uint64(inst.Weight)
		cumulative[i] = total
	}
	return &weightedRandomPicker{instances: nz, cumulative: cumulative, total: total}
}

type weightedRandomPicker struct {
	instances  []discovery.Instance
	cumulative []uint64
	total      uint64
}

func (p *weightedRandomPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	if p.total == 0 {
		return rpcaddr.Address{}, false
	}
	draw := rand.Uint64N(p.total)

	lo, hi := 0, len(p.cumulative)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if p.cumulative[mid] <= draw {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return p.instances[lo].Address, true
}
