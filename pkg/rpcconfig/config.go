// Package rpcconfig is the in-repo analogue of the external volo.yml
// artifact (spec §1): a layered loader (defaults -> YAML file -> env
// overrides) producing ClientOptions/ServerOptions, adapted from the
// teacher's koanf-based pkg/config. pkg/client and pkg/server do not
// import this package; their own Options structs are filled by the caller.
package rpcconfig

import "time"

// ClientOptions holds client-side settings: pool idle timeout and sweep
// interval, LB strategy selection, discovery backend, TLS, retry budget
// and the compression list (spec §3 Config, §4.F/§4.G/§4.H).
type ClientOptions struct {
	PoolIdleTimeout  time.Duration `koanf:"pool_idle_timeout"`
	PoolSweep        time.Duration `koanf:"pool_sweep_interval"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	RPCTimeout       time.Duration `koanf:"rpc_timeout"`
	LoadBalance      string        `koanf:"load_balance"` // round_robin, weighted_round_robin, random, weighted_random, p2c, least_connection, response_time, consistent_hash
	Discovery        string        `koanf:"discovery"`    // static, dns, redis
	RetryCount       int           `koanf:"retry_count"`
	SendCompression  string        `koanf:"send_compression"`
	AcceptCompression []string     `koanf:"accept_compression"`
	TLS              TLSOptions    `koanf:"tls"`
}

// ServerOptions configures pkg/server's accept loop and transport
// adapters (spec §4.I).
type ServerOptions struct {
	ListenAddr      string        `koanf:"listen_addr"`
	Transport       string        `koanf:"transport"` // pingpong, multiplex, grpc
	ReadWriteTimeout time.Duration `koanf:"read_write_timeout"`
	TLS             TLSOptions    `koanf:"tls"`
}

// TLSOptions names cert/key material for pkg/rpctransport's TLS-wrapped
// dial/listen variants. Only the interface is specified by spec §4.A;
// the crypto itself is stdlib crypto/tls glue.
type TLSOptions struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// DefaultClientOptions mirrors the teacher's defaults-layer values; the
// durations match the defaults pkg/client's Options.setDefaults applies.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		PoolIdleTimeout: 90 * time.Second,
		PoolSweep:       time.Minute,
		ConnectTimeout:  time.Second,
		RPCTimeout:      5 * time.Second,
		LoadBalance:     "round_robin",
		Discovery:       "static",
		RetryCount:      1,
	}
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		ListenAddr:       ":9090",
		Transport:        "multiplex",
		ReadWriteTimeout: 30 * time.Second,
	}
}
