package loadbalance

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"conduit/pkg/discovery"
)

// LoadBalance implements spec §4.F's get_picker contract: look up a
// picker cache by discover.Key(endpoint); on a miss, discover instances,
// build a picker, cache it, and — if discover.Watch offers a channel —
// subscribe once and keep the cached entry in sync for as long as it
// lives. Concurrent misses for the same key are coalesced through a
// singleflight.Group so a cold endpoint triggers exactly one Discover
// call no matter how many callers arrive at once.
type LoadBalance struct {
	strategy Strategy
	discover discovery.Discover[string]

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu        sync.Mutex
	instances []discovery.Instance
	picker    Picker
	cancel    context.CancelFunc
}

// New builds a LoadBalance over discover using strategy to construct
// pickers.
func New(strategy Strategy, discover discovery.Discover[string]) *LoadBalance {
	return &LoadBalance{strategy: strategy, discover: discover, entries: make(map[string]*cacheEntry)}
}

// GetPicker returns the cached picker for endpoint, building one on a
// cache miss (spec §4.F step 1/2).
func (lb *LoadBalance) GetPicker(ctx context.Context, endpoint string) (Picker, error) {
	key := lb.discover.Key(endpoint)

	lb.mu.RLock()
	entry, ok := lb.entries[key]
	lb.mu.RUnlock()
	if ok {
		entry.mu.Lock()
		p := entry.picker
		entry.mu.Unlock()
		return p, nil
	}

	v, err, _ := lb.group.Do(key, func() (any, error) {
		instances, err := lb.discover.Discover(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		entry := &cacheEntry{instances: instances, picker: lb.strategy.NewPicker(instances)}

		watchCtx, cancel := context.WithCancel(context.Background())
		entry.cancel = cancel
		if ch, watchable := lb.discover.Watch(watchCtx, endpoint); watchable {
			go lb.watchLoop(entry, ch)
		} else {
			cancel()
		}

		lb.mu.Lock()
		lb.entries[key] = entry
		lb.mu.Unlock()
		return entry.picker, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Picker), nil
}

// watchLoop applies every Change to entry for as long as the watch
// channel stays open (spec §4.F step 2, SPEC_FULL.md §13 OQ-1): an
// add/remove-only Change is spliced incrementally when the picker
// supports it; any Change carrying Updated entries forces a full
// picker rebuild from the new instance set.
func (lb *LoadBalance) watchLoop(entry *cacheEntry, ch <-chan discovery.Change[string]) {
	for change := range ch {
		entry.mu.Lock()
		entry.instances = applyChange(entry.instances, change)

		if len(change.Updated) > 0 {
			entry.picker = lb.strategy.NewPicker(entry.instances)
		} else if ip, ok := entry.picker.(IncrementalPicker); ok {
			entry.picker = ip.ApplyIncremental(change.Added, change.Removed)
		} else {
			entry.picker = lb.strategy.NewPicker(entry.instances)
		}
		entry.mu.Unlock()
	}
}

func applyChange(instances []discovery.Instance, change discovery.Change[string]) []discovery.Instance {
	removed := make(map[string]bool, len(change.Removed))
	for _, inst := range change.Removed {
		removed[inst.Address.String()] = true
	}
	updated := make(map[string]discovery.Instance, len(change.Updated))
	for _, inst := range change.Updated {
		updated[inst.Address.String()] = inst
	}

	out := make([]discovery.Instance, 0, len(instances)+len(change.Added))
	for _, inst := range instances {
		key := inst.Address.String()
		if removed[key] {
			continue
		}
		if u, ok := updated[key]; ok {
			out = append(out, u)
			continue
		}
		out = append(out, inst)
	}
	out = append(out, change.Added...)
	return out
}

// Close stops every active watch subscription.
func (lb *LoadBalance) Close() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	for _, entry := range lb.entries {
		if entry.cancel != nil {
			entry.cancel()
		}
	}
}
