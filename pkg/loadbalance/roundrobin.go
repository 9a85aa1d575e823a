package loadbalance

import (
	"sync"
	"sync/atomic"

	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// RoundRobinStrategy cycles through instances with a stateful counter
// per picker, advancing modulo N (spec §4.F "Round Robin").
type RoundRobinStrategy struct{}

func (RoundRobinStrategy) NewPicker(instances []discovery.Instance) Picker {
	return &roundRobinPicker{instances: NonZeroWeight(instances)}
}

type roundRobinPicker struct {
	instances []discovery.Instance
	counter   atomic.Uint64
}

func (p *roundRobinPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	if len(p.instances) == 0 {
		return rpcaddr.Address{}, false
	}
	i := p.counter.Add(1) - 1
	return p.instances[i%uint64(len(p.instances))].Address, true
}

// WeightedRoundRobinStrategy implements classic smooth WRR (spec §4.F):
// each instance accrues its effective_weight every round; the instance
// with the highest current weight is picked, then has total weight
// subtracted. This spreads selections proportionally to weight without
// bursts, unlike a naive weighted-counter approach.
type WeightedRoundRobinStrategy struct{}

func (WeightedRoundRobinStrategy) NewPicker(instances []discovery.Instance) Picker {
	nz := NonZeroWeight(instances)
	entries := make([]*wrrEntry, len(nz))
	total := 0
	for i, inst := range nz {
		entries[i] = &wrrEntry{instance: inst, effective: int64(inst.Weight)}
		total += int(inst.Weight)
	}
	return &weightedRoundRobinPicker{entries: entries, total: int64(total)}
}

type wrrEntry struct {
	instance  discovery.Instance
	current   int64
	effective int64
}

type weightedRoundRobinPicker struct {
	mu      sync.Mutex
	entries []*wrrEntry
	total   int64
}

func (p *weightedRoundRobinPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	if len(p.entries) == 0 {
		return rpcaddr.Address{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var best *wrrEntry
	for _, e := range p.entries {
		e.current += e.effective
		if best == nil || e.current > best.current {
			best = e
		}
	}
	best.current -= p.total
	return best.instance.Address, true
}
