package loadbalance

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// RequestHashExtensionKey is the Context extension key the caller sets
// before dispatch so the consistent-hash picker can route by it (spec
// §4.F "next() reads the per-call RequestHash from metainfo"). MetaInfo
// itself only carries wire-forwarded key/value pairs, so this lives on
// the Context's extensions table instead (same scope, no wire cost).
const RequestHashExtensionKey = "loadbalance.request_hash"

// SetRequestHash stamps the hash a consistent-hash picker should route
// this call by.
func SetRequestHash(cx *rpcinfo.Context, hash uint64) {
	cx.SetExtension(RequestHashExtensionKey, hash)
}

// ConsistentHashOption configures the ring (spec §4.F "Configurable via
// ConsistentHashOption (replicas, hash fn)").
type ConsistentHashOption struct {
	Replicas int                 // virtual nodes per instance; default 100
	HashFn   func([]byte) uint64 // default xxhash.Sum64
}

func (o ConsistentHashOption) withDefaults() ConsistentHashOption {
	if o.Replicas <= 0 {
		o.Replicas = 100
	}
	if o.HashFn == nil {
		o.HashFn = xxhash.Sum64
	}
	return o
}

// ConsistentHashStrategy builds a virtual-node ring keyed on instance
// address (spec §4.F "Consistent Hash").
type ConsistentHashStrategy struct {
	Option ConsistentHashOption
}

func (s ConsistentHashStrategy) NewPicker(instances []discovery.Instance) Picker {
	opt := s.Option.withDefaults()
	p := &consistentHashPicker{option: opt}
	p.rebuild(NonZeroWeight(instances))
	return p
}

type ringPoint struct {
	hash     uint64
	instance discovery.Instance
}

// consistentHashPicker owns the ring points sorted by hash. On an exact
// tie (two ring points share a hash) ring order — i.e. position within
// this sorted slice — is the tie-break (spec §4.F), which falls out
// naturally from a stable sort over insertion order.
type consistentHashPicker struct {
	mu        sync.RWMutex
	option    ConsistentHashOption
	instances []discovery.Instance
	points    []ringPoint
}

func (p *consistentHashPicker) rebuild(instances []discovery.Instance) {
	points := make([]ringPoint, 0, len(instances)*p.option.Replicas)
	for _, inst := range instances {
		points = append(points, virtualPoints(inst, p.option)...)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].hash < points[j].hash })

	p.mu.Lock()
	p.instances = instances
	p.points = points
	p.mu.Unlock()
}

func virtualPoints(inst discovery.Instance, opt ConsistentHashOption) []ringPoint {
	base := inst.Address.String()
	points := make([]ringPoint, opt.Replicas)
	for i := 0; i < opt.Replicas; i++ {
		key := base + "#" + strconv.Itoa(i)
		points[i] = ringPoint{hash: opt.HashFn([]byte(key)), instance: inst}
	}
	return points
}

func (p *consistentHashPicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.points) == 0 {
		return rpcaddr.Address{}, false
	}

	var hash uint64
	if v, ok := cx.Extension(RequestHashExtensionKey); ok {
		if h, ok := v.(uint64); ok {
			hash = h
		}
	}

	i := sort.Search(len(p.points), func(i int) bool { return p.points[i].hash >= hash })
	if i == len(p.points) {
		i = 0 // wrap around the ring
	}
	return p.points[i].instance.Address, true
}

// ApplyIncremental splices added/removed instances into the existing
// ring without recomputing virtual points for untouched instances
// (SPEC_FULL.md §13 OQ-1: add/remove is an incremental splice).
func (p *consistentHashPicker) ApplyIncremental(added, removed []discovery.Instance) Picker {
	p.mu.Lock()
	removedAddrs := make(map[string]bool, len(removed))
	for _, inst := range removed {
		removedAddrs[inst.Address.String()] = true
	}

	points := make([]ringPoint, 0, len(p.points))
	for _, pt := range p.points {
		if !removedAddrs[pt.instance.Address.String()] {
			points = append(points, pt)
		}
	}
	for _, inst := range added {
		if inst.Weight == 0 {
			continue
		}
		points = append(points, virtualPoints(inst, p.option)...)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].hash < points[j].hash })

	instances := make([]discovery.Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		if !removedAddrs[inst.Address.String()] {
			instances = append(instances, inst)
		}
	}
	instances = append(instances, NonZeroWeight(added)...)

	p.instances = instances
	p.points = points
	p.mu.Unlock()
	return p
}
