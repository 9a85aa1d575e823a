package loadbalance

import (
	"math/rand/v2"
	"time"

	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// P2CStrategy samples two distinct instances uniformly and picks the one
// with the lower current load (spec §4.F "Power of Two"). This avoids
// the herd effect of always picking the single least-loaded instance
// under high concurrency while still biasing away from hot instances.
type P2CStrategy struct{}

func (P2CStrategy) NewPicker(instances []discovery.Instance) Picker {
	nz := NonZeroWeight(instances)
	keys := make([]string, len(nz))
	for i, inst := range nz {
		keys[i] = inst.Address.String()
	}
	return &p2cPicker{instances: nz, load: newConnCounter(keys)}
}

type p2cPicker struct {
	instances []discovery.Instance
	load      *connCounter
}

func (p *p2cPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	n := len(p.instances)
	if n == 0 {
		return rpcaddr.Address{}, false
	}
	if n == 1 {
		addr := p.instances[0].Address
		p.load.inc(addr.String())
		return addr, true
	}

	i := rand.IntN(n)
	j := rand.IntN(n - 1)
	if j >= i {
		j++
	}

	a, b := p.instances[i], p.instances[j]
	chosen := a
	if p.load.load(b.Address.String()) < p.load.load(a.Address.String()) {
		chosen = b
	}
	p.load.inc(chosen.Address.String())
	return chosen.Address, true
}

func (p *p2cPicker) Done(addr rpcaddr.Address, duration time.Duration, err error) {
	p.load.dec(addr.String())
}

// LeastConnectionStrategy tracks in-flight counts per instance and
// always returns the minimum (spec §4.F "Least Connection").
type LeastConnectionStrategy struct{}

func (LeastConnectionStrategy) NewPicker(instances []discovery.Instance) Picker {
	nz := NonZeroWeight(instances)
	keys := make([]string, len(nz))
	for i, inst := range nz {
		keys[i] = inst.Address.String()
	}
	return &leastConnPicker{instances: nz, load: newConnCounter(keys)}
}

type leastConnPicker struct {
	instances []discovery.Instance
	load      *connCounter
}

func (p *leastConnPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	if len(p.instances) == 0 {
		return rpcaddr.Address{}, false
	}
	best := p.instances[0]
	bestLoad := p.load.load(best.Address.String())
	for _, inst := range p.instances[1:] {
		if l := p.load.load(inst.Address.String()); l < bestLoad {
			best, bestLoad = inst, l
		}
	}
	p.load.inc(best.Address.String())
	return best.Address, true
}

func (p *leastConnPicker) Done(addr rpcaddr.Address, duration time.Duration, err error) {
	p.load.dec(addr.String())
}
