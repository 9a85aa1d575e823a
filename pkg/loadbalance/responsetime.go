package loadbalance

import (
	"math/rand/v2"
	"sync"
	"time"

	"conduit/pkg/discovery"
	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcinfo"
)

// responseWindowSize is N in spec §4.F "sliding window of N most recent
// durations per instance".
const responseWindowSize = 32

// ResponseTimeWeightedStrategy picks inversely proportional to each
// instance's mean of its last responseWindowSize call durations (spec
// §4.F). A freshly seen instance with no samples yet gets weight 1, so it
// gets traffic immediately rather than being starved until it accrues
// history; sampled instances weigh 1/mean in nanoseconds, so an
// unsampled instance outweighs every sampled one.
type ResponseTimeWeightedStrategy struct{}

func (ResponseTimeWeightedStrategy) NewPicker(instances []discovery.Instance) Picker {
	nz := NonZeroWeight(instances)
	windows := make(map[string]*slidingWindow, len(nz))
	for _, inst := range nz {
		windows[inst.Address.String()] = &slidingWindow{}
	}
	return &responseTimePicker{instances: nz, windows: windows}
}

type slidingWindow struct {
	mu      sync.Mutex
	samples [responseWindowSize]time.Duration
	count   int
	next    int
}

func (w *slidingWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % responseWindowSize
	if w.count < responseWindowSize {
		w.count++
	}
}

func (w *slidingWindow) mean() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < w.count; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(w.count)
}

type responseTimePicker struct {
	instances []discovery.Instance
	windows   map[string]*slidingWindow
}

func (p *responseTimePicker) Next(cx *rpcinfo.Context) (rpcaddr.Address, bool) {
	n := len(p.instances)
	if n == 0 {
		return rpcaddr.Address{}, false
	}

	weights := make([]float64, n)
	var total float64
	for i, inst := range p.instances {
		mean := p.windows[inst.Address.String()].mean()
		w := 1.0
		if mean > 0 {
			w = 1.0 / float64(mean)
		}
		weights[i] = w
		total += w
	}

	draw := rand.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if draw <= cum {
			return p.instances[i].Address, true
		}
	}
	return p.instances[n-1].Address, true
}

func (p *responseTimePicker) Done(addr rpcaddr.Address, duration time.Duration, err error) {
	if w, ok := p.windows[addr.String()]; ok {
		w.record(duration)
	}
}
