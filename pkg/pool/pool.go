// Package pool implements the connection pool of spec §4.G: entries
// keyed by (callee service name, address, transport kind), checked out
// via Get and returned via Pooled.Release iff the transport reports
// itself reusable, with idle entries expiring after a configurable
// timeout and concurrent first-dial callers coalesced through
// singleflight the same way the picker cache coalesces discovery misses.
package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"conduit/pkg/rpcmetrics"
)

// Transport is the minimal contract both the pingpong and multiplex
// transports (pkg/thriftpp, pkg/multiplex) satisfy so the pool can
// manage either uniformly.
type Transport interface {
	// Reusable reports whether this transport may serve another
	// caller after the current one is done with it (spec invariant 3:
	// an entry observed with crrst, or that errored on decode/encode,
	// must never be returned again).
	Reusable() bool
	Close() error
}

// Key identifies a set of interchangeable transports (spec §3 "Pooled
// entry", §4.G "keyed by (callee-service-name, address, transport-kind)").
type Key struct {
	Service string
	Addr    string
	Kind    string // "pingpong" or "multiplex"
}

type idleSlot struct {
	transport Transport
	lastUsed  time.Time
}

// Pool holds idle transports per Key and dials fresh ones on a miss.
type Pool struct {
	idleTimeout time.Duration

	mu     sync.Mutex
	idle   map[Key][]*idleSlot
	active map[Key]int
	group  singleflight.Group

	recorder rpcmetrics.Recorder

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Pool that expires idle entries older than idleTimeout and
// sweeps for expiries every sweepInterval. Pool gauges are reported to
// rpcmetrics.Noop until SetRecorder is called.
func New(idleTimeout, sweepInterval time.Duration) *Pool {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	p := &Pool{
		idleTimeout: idleTimeout,
		idle:        make(map[Key][]*idleSlot),
		active:      make(map[Key]int),
		recorder:    rpcmetrics.Noop,
		stopCh:      make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop(sweepInterval)
	return p
}

// SetRecorder installs r as the destination for this pool's PoolGauge
// reports. Passing nil restores rpcmetrics.Noop. Call before the pool
// serves concurrent traffic; it is not itself synchronized against Get/put.
func (p *Pool) SetRecorder(r rpcmetrics.Recorder) {
	if r == nil {
		r = rpcmetrics.Noop
	}
	p.recorder = r
}

// reportLocked calls the recorder with the current idle/active counts for
// key. Caller must hold p.mu.
func (p *Pool) reportLocked(key Key) {
	p.recorder.PoolGauge(key.Service, key.Kind, len(p.idle[key]), p.active[key])
}

// Pooled is a checked-out transport; the caller MUST call Release
// exactly once when done (spec §4.G "on drop, Pooled returns the entry
// to the pool iff its reusable() is true").
type Pooled struct {
	Transport Transport

	pool     *Pool
	key      Key
	once     sync.Once
}

// Release returns the transport to the pool if it is still reusable,
// otherwise closes it. Safe to call multiple times; only the first call
// has effect.
func (p *Pooled) Release() {
	p.once.Do(func() {
		if p.Transport.Reusable() {
			p.pool.put(p.key, p.Transport)
		} else {
			_ = p.Transport.Close()
			p.pool.decrActive(p.key)
		}
	})
}

// Get returns an idle reusable entry for key if one is available and
// not expired; otherwise it calls mkTransport to dial a fresh one.
// Concurrent misses for the same key are coalesced into a single
// mkTransport call (spec §4.G, SPEC_FULL.md §11 singleflight note).
func (p *Pool) Get(ctx context.Context, key Key, mkTransport func(context.Context) (Transport, error)) (*Pooled, error) {
	if slot, ok := p.popIdle(key); ok {
		p.incrActive(key)
		return &Pooled{Transport: slot.transport, pool: p, key: key}, nil
	}

	v, err, _ := p.group.Do(keyString(key), func() (any, error) {
		return mkTransport(ctx)
	})
	if err != nil {
		return nil, err
	}
	p.incrActive(key)
	return &Pooled{Transport: v.(Transport), pool: p, key: key}, nil
}

func (p *Pool) popIdle(key Key) (*idleSlot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := p.idle[key]
	for len(slots) > 0 {
		slot := slots[len(slots)-1]
		slots = slots[:len(slots)-1]
		p.idle[key] = slots

		if p.idleTimeout > 0 && time.Since(slot.lastUsed) > p.idleTimeout {
			_ = slot.transport.Close()
			continue
		}
		if !slot.transport.Reusable() {
			_ = slot.transport.Close()
			continue
		}
		p.reportLocked(key)
		return slot, true
	}
	p.reportLocked(key)
	return nil, false
}

func (p *Pool) incrActive(key Key) {
	p.mu.Lock()
	p.active[key]++
	p.reportLocked(key)
	p.mu.Unlock()
}

func (p *Pool) decrActive(key Key) {
	p.mu.Lock()
	if p.active[key] > 0 {
		p.active[key]--
	}
	p.reportLocked(key)
	p.mu.Unlock()
}

func (p *Pool) put(key Key, t Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[key] > 0 {
		p.active[key]--
	}
	if p.closed {
		_ = t.Close()
		p.reportLocked(key)
		return
	}
	p.idle[key] = append(p.idle[key], &idleSlot{transport: t, lastUsed: time.Now()})
	p.reportLocked(key)
}

func keyString(k Key) string {
	return k.Service + "|" + k.Addr + "|" + k.Kind
}

func (p *Pool) sweepLoop(interval time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	if p.idleTimeout <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, slots := range p.idle {
		live := slots[:0]
		for _, slot := range slots {
			if time.Since(slot.lastUsed) > p.idleTimeout {
				_ = slot.transport.Close()
				continue
			}
			live = append(live, slot)
		}
		if len(live) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = live
		}
	}
}

// Close stops the sweep loop and closes every idle entry.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	for key, slots := range p.idle {
		for _, slot := range slots {
			_ = slot.transport.Close()
		}
		delete(p.idle, key)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
