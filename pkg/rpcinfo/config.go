package rpcinfo

import "time"

// Compression names an encoding negotiated between caller and callee
// (spec §3 Config.send_compressions/accept_compressions).
type Compression string

const (
	CompressionNone Compression = "identity"
	CompressionGzip Compression = "gzip"
	CompressionZlib Compression = "zlib"
)

// Config is the per-call configuration overlay (spec §3). Every field is
// optional; Merge is right-biased per field (invariant 4), never
// whole-struct.
type Config struct {
	RPCTimeout        *time.Duration
	ConnectTimeout    *time.Duration
	ReadWriteTimeout  *time.Duration
	SendCompressions  []Compression
	AcceptCompressions []Compression
}

// Merge overlays any field set on other onto a copy of c and returns it.
// Per invariant 4 this is field-by-field, not a wholesale replace: a zero
// Config{} passed as other changes nothing.
func (c Config) Merge(other Config) Config {
	out := c
	if other.RPCTimeout != nil {
		out.RPCTimeout = other.RPCTimeout
	}
	if other.ConnectTimeout != nil {
		out.ConnectTimeout = other.ConnectTimeout
	}
	if other.ReadWriteTimeout != nil {
		out.ReadWriteTimeout = other.ReadWriteTimeout
	}
	if other.SendCompressions != nil {
		out.SendCompressions = other.SendCompressions
	}
	if other.AcceptCompressions != nil {
		out.AcceptCompressions = other.AcceptCompressions
	}
	return out
}

func dur(d time.Duration) *time.Duration { return &d }

// WithRPCTimeout returns a Config overlay setting only rpc_timeout, handy
// for CallOpt construction (spec §4.H).
func WithRPCTimeout(d time.Duration) Config {
	return Config{RPCTimeout: dur(d)}
}
