package loadbalance

import (
	"sync/atomic"
	"time"

	"conduit/pkg/rpcaddr"
)

// LoadFeedback is implemented by pickers that need to know how a call
// they dispatched turned out (spec §4.F "Least Connection", "P2C" and
// "Response-Time Weighted" all track live per-instance state the client
// stack must report back into). Retry, which pkg/client's discovery+LB
// layer dispatches through, calls Done after every attempt if the picker
// in use implements this.
type LoadFeedback interface {
	Done(addr rpcaddr.Address, duration time.Duration, err error)
}

// connCounter is a small goroutine-safe in-flight counter per address,
// the shared building block for P2C and Least Connection (spec §4.F
// "reused EWMA counter" — here a plain live count, since the two
// strategies only ever compare relative load, not an absolute rate).
type connCounter struct {
	counts map[string]*atomic.Int64
}

func newConnCounter(keys []string) *connCounter {
	c := &connCounter{counts: make(map[string]*atomic.Int64, len(keys))}
	for _, k := range keys {
		c.counts[k] = &atomic.Int64{}
	}
	return c
}

func (c *connCounter) inc(key string) {
	if b, ok := c.counts[key]; ok {
		b.Add(1)
	}
}

func (c *connCounter) dec(key string) {
	if b, ok := c.counts[key]; ok {
		for {
			cur := b.Load()
			if cur <= 0 || b.CompareAndSwap(cur, cur-1) {
				return
			}
		}
	}
}

func (c *connCounter) load(key string) int64 {
	if b, ok := c.counts[key]; ok {
		return b.Load()
	}
	return 0
}
