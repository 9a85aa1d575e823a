package client

import (
	"context"
	"sync/atomic"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
)

// CallOpt carries per-call overrides applied at call entry (spec §4.H):
// endpoint tags merged onto the caller Endpoint, an address override that
// bypasses discovery entirely, and a partial Config merged into the
// RpcInfo. Each constructor returns a single-field CallOpt; Call/WithCallOpt
// merge however many are passed.
type CallOpt struct {
	tags    map[string]string
	address *rpcaddr.Address
	config  rpcinfo.Config
}

// WithTag attaches a caller-endpoint tag for this call only.
func WithTag(key, value string) CallOpt {
	return CallOpt{tags: map[string]string{key: value}}
}

// WithAddress bypasses discovery and the load-balance picker entirely,
// sending the call directly to addr (spec §4.H "address override
// (bypasses discovery)").
func WithAddress(addr rpcaddr.Address) CallOpt {
	return CallOpt{address: &addr}
}

// WithConfig overlays cfg onto the call's RpcInfo.Config via Config.Merge.
func WithConfig(cfg rpcinfo.Config) CallOpt {
	return CallOpt{config: cfg}
}

func mergeCallOpts(opts []CallOpt) CallOpt {
	merged := CallOpt{tags: make(map[string]string)}
	for _, o := range opts {
		for k, v := range o.tags {
			merged.tags[k] = v
		}
		if o.address != nil {
			merged.address = o.address
		}
		merged.config = merged.config.Merge(o.config)
	}
	return merged
}

// OneShotService is produced by Client.WithCallOpt; it consumes its
// CallOpt exactly once (spec §4.H "A OneShotService is produced by
// with_callopt; it consumes the CallOpt exactly once"). A second Call
// fails rather than silently reusing the same overrides.
type OneShotService struct {
	client *Client
	opt    CallOpt
	used   atomic.Bool
}

// Call invokes method with req, applying the bound CallOpt. Safe for
// exactly one invocation; subsequent calls return an error.
func (o *OneShotService) Call(ctx context.Context, method string, req []byte) ([]byte, error) {
	if !o.used.CompareAndSwap(false, true) {
		return nil, rpcerr.Application(rpcerr.CodeInternalServer, "OneShotService: CallOpt already consumed")
	}
	return o.client.call(ctx, method, req, o.opt)
}
