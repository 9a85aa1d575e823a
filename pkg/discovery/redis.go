package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
)

// RedisDiscover is a registry-style Discover backed by a Redis set per
// callee service: each member is a JSON-encoded instance, refreshed by
// whatever out-of-band process registers server instances (a registration
// helper is out of scope, spec §1 excludes a CLI/registry server). This
// supplements spec §4.E's Static/DNS variants, per SPEC_FULL.md §13 OQ-3.
type RedisDiscover struct {
	client    *redis.Client
	keyPrefix string
	pollEvery time.Duration
}

type redisInstance struct {
	Address string            `json:"address"`
	Weight  uint32            `json:"weight"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// NewRedisDiscover wraps an existing *redis.Client. keyPrefix namespaces
// the registry's keyspace (e.g. "conduit:registry:"); pollEvery controls
// how often Watch diffs the set to synthesize Change events, since Redis
// sets have no native change-notification without keyspace events enabled.
func NewRedisDiscover(client *redis.Client, keyPrefix string, pollEvery time.Duration) *RedisDiscover {
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	return &RedisDiscover{client: client, keyPrefix: keyPrefix, pollEvery: pollEvery}
}

func (d *RedisDiscover) registryKey(endpoint string) string {
	return d.keyPrefix + endpoint
}

func (d *RedisDiscover) Discover(ctx context.Context, endpoint string) ([]Instance, error) {
	members, err := d.client.SMembers(ctx, d.registryKey(endpoint)).Result()
	if err != nil {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "redis registry lookup failed: "+err.Error())
	}
	return decodeRedisMembers(members)
}

func (d *RedisDiscover) Key(endpoint string) string {
	return endpoint
}

// Watch polls the registry set every pollEvery and emits a Change once
// the membership differs from the prior snapshot. The channel is closed
// when ctx is cancelled.
func (d *RedisDiscover) Watch(ctx context.Context, endpoint string) (<-chan Change[string], bool) {
	out := make(chan Change[string], 1)
	go func() {
		defer close(out)
		prev := map[string]Instance{}
		t := time.NewTicker(d.pollEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cur, err := d.Discover(ctx, endpoint)
				if err != nil {
					continue
				}
				change, next := diffInstances(prev, cur)
				prev = next
				if len(change.Added)+len(change.Updated)+len(change.Removed) == 0 {
					continue
				}
				change.Key = d.Key(endpoint)
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, true
}

func diffInstances(prev map[string]Instance, cur []Instance) (Change[string], map[string]Instance) {
	next := make(map[string]Instance, len(cur))
	var change Change[string]

	for _, inst := range cur {
		k := inst.Address.String()
		next[k] = inst
		old, existed := prev[k]
		if !existed {
			change.Added = append(change.Added, inst)
		} else if old.Weight != inst.Weight {
			change.Updated = append(change.Updated, inst)
		}
	}
	for k, inst := range prev {
		if _, stillPresent := next[k]; !stillPresent {
			change.Removed = append(change.Removed, inst)
		}
	}
	return change, next
}

func decodeRedisMembers(members []string) ([]Instance, error) {
	out := make([]Instance, 0, len(members))
	for _, m := range members {
		var ri redisInstance
		if err := json.Unmarshal([]byte(m), &ri); err != nil {
			return nil, rpcerr.Protocol(rpcerr.CodeKVDecode, "malformed registry entry: "+err.Error())
		}
		addr, err := rpcaddr.NewTCPAddr(ri.Address)
		if err != nil {
			return nil, rpcerr.Protocol(rpcerr.CodeKVDecode, "malformed registry address: "+err.Error())
		}
		out = append(out, Instance{Address: addr, Weight: ri.Weight, Tags: ri.Tags})
	}
	return out, nil
}

// RegisterInstance publishes inst into the registry set for service. The
// set member has no expiry: a registration stays until
// DeregisterInstance removes it.
func (d *RedisDiscover) RegisterInstance(ctx context.Context, service string, inst Instance) error {
	payload, err := json.Marshal(redisInstance{Address: inst.Address.String(), Weight: inst.Weight, Tags: inst.Tags})
	if err != nil {
		return err
	}
	if err := d.client.SAdd(ctx, d.registryKey(service), payload).Err(); err != nil {
		return fmt.Errorf("rpcdiscovery: register failed: %w", err)
	}
	return nil
}

// DeregisterInstance removes inst from service's registry set, used on
// graceful server shutdown.
func (d *RedisDiscover) DeregisterInstance(ctx context.Context, service string, inst Instance) error {
	payload, err := json.Marshal(redisInstance{Address: inst.Address.String(), Weight: inst.Weight, Tags: inst.Tags})
	if err != nil {
		return err
	}
	return d.client.SRem(ctx, d.registryKey(service), payload).Err()
}
