package discovery

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"time"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpccache"
	"conduit/pkg/rpcerr"
)

// DNSDiscover resolves "host:port" at each call using a net.Resolver
// (spec §4.E "resolves host:port at each call; IPv4 and IPv6; IPv6
// brackets stripped in lookup"). It never pushes Change events — callers
// that need rebalance-on-change should poll by calling Discover again or
// wrap this in a ticker, there is no registry to watch.
//
// Results are memoized for a short TTL in an rpccache.Cache so a hot
// endpoint does not re-resolve on every single call (SPEC_FULL.md §11
// caching note); pass a nil cache to disable memoization entirely.
type DNSDiscover struct {
	resolver *net.Resolver
	cache    rpccache.Cache
	ttl      time.Duration
	weight   uint32
}

// NewDNSDiscover builds a DNS-backed Discover. weight is applied to
// every resolved instance (DNS carries no weight information itself);
// pass 0 to get the framework default of 1.
func NewDNSDiscover(cache rpccache.Cache, ttl time.Duration, weight uint32) *DNSDiscover {
	if weight == 0 {
		weight = 1
	}
	return &DNSDiscover{resolver: net.DefaultResolver, cache: cache, ttl: ttl, weight: weight}
}

func (d *DNSDiscover) Discover(ctx context.Context, endpoint string) ([]Instance, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "invalid host:port for DNS discovery: "+err.Error())
	}
	host = strings.Trim(host, "[]") // IPv6 literals arrive bracketed
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "invalid port for DNS discovery: "+err.Error())
	}

	cacheKey := "dns:" + endpoint
	if d.cache != nil {
		if raw, err := d.cache.Get(ctx, cacheKey); err == nil {
			return decodeInstances(raw, d.weight), nil
		}
	}

	ips, err := d.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "dns lookup failed: "+err.Error())
	}

	instances := make([]Instance, 0, len(ips))
	for _, ip := range ips {
		instances = append(instances, Instance{
			Address: rpcaddr.NewIP(ip, port),
			Weight:  d.weight,
		})
	}

	if d.cache != nil {
		_ = d.cache.Set(ctx, cacheKey, encodeInstances(instances), d.ttl)
	}
	return instances, nil
}

func (d *DNSDiscover) Key(endpoint string) string {
	return endpoint
}

// Watch always returns false: DNS has no push channel, spec §4.E leaves
// this variant poll-only.
func (d *DNSDiscover) Watch(ctx context.Context, endpoint string) (<-chan Change[string], bool) {
	return nil, false
}

// encodeInstances/decodeInstances give the memoization cache a wire
// format without dragging IDL codegen into a discovery-internal detail:
// 1 byte IP length (4 or 16) + IP bytes + 2-byte BE port, repeated.
func encodeInstances(instances []Instance) []byte {
	buf := make([]byte, 0, len(instances)*19)
	for _, inst := range instances {
		ip := inst.Address.IP()
		l := byte(len(ip))
		port := inst.Address.Port()
		buf = append(buf, l)
		buf = append(buf, ip...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(port))
	}
	return buf
}

func decodeInstances(raw []byte, weight uint32) []Instance {
	var out []Instance
	off := 0
	for off < len(raw) {
		l := int(raw[off])
		off++
		if off+l+2 > len(raw) {
			break
		}
		ip := net.IP(raw[off : off+l])
		off += l
		port := int(binary.BigEndian.Uint16(raw[off : off+2]))
		off += 2
		out = append(out, Instance{Address: rpcaddr.NewIP(ip, port), Weight: weight})
	}
	return out
}
