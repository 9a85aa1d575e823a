// Package rpcaddr defines the Address discriminated value (spec §3) used
// throughout discovery, load-balance and the connection pool as the
// identity of a dialable endpoint.
package rpcaddr

import (
	"fmt"
	"net"

	"github.com/cespare/xxhash/v2"
)

// Kind discriminates the Address variant.
type Kind int

const (
	KindIP Kind = iota
	KindUnix
	KindShm
)

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindUnix:
		return "unix"
	case KindShm:
		return "shm"
	default:
		return "unknown"
	}
}

// Address is immutable after construction; Equal and Hash are by variant
// contents, matching spec §3.
type Address struct {
	kind Kind
	ip   net.IP
	port int
	path string // unix socket path or shm segment path
}

// NewIP constructs a TCP/UDP-style socket address.
func NewIP(ip net.IP, port int) Address {
	return Address{kind: KindIP, ip: ip, port: port}
}

// NewTCPAddr parses "host:port" into an IP-kind Address. The host must be
// a literal IP; hostnames are rejected with an error, not resolved.
func NewTCPAddr(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Address{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Address{}, fmt.Errorf("not a literal IP: %q (use discovery to resolve hostnames)", host)
	}
	return NewIP(ip, port), nil
}

// NewUnix constructs a Unix-domain socket address.
func NewUnix(path string) Address {
	return Address{kind: KindUnix, path: path}
}

// NewShm constructs a shared-memory transport address (supplemental,
// grounded on original_source volo/src/net/shm.rs; see SPEC_FULL.md §12).
func NewShm(path string) Address {
	return Address{kind: KindShm, path: path}
}

func (a Address) Kind() Kind { return a.kind }

// IP returns the IP-kind address's IP, or nil for other kinds.
func (a Address) IP() net.IP { return a.ip }

// Port returns the IP-kind address's port, or 0 for other kinds.
func (a Address) Port() int { return a.port }

// Path returns the Unix/Shm-kind address's path, or "" for IP.
func (a Address) Path() string { return a.path }

func (a Address) String() string {
	switch a.kind {
	case KindIP:
		return net.JoinHostPort(a.ip.String(), fmt.Sprintf("%d", a.port))
	case KindUnix:
		return "unix://" + a.path
	case KindShm:
		return "shm://" + a.path
	default:
		return "invalid"
	}
}

// Network matches the net.Addr interface's Network() method so an Address
// can be handed to dial/listen helpers that expect one.
func (a Address) Network() string {
	switch a.kind {
	case KindIP:
		return "tcp"
	case KindUnix:
		return "unix"
	case KindShm:
		return "shm"
	default:
		return ""
	}
}

// Equal compares two addresses by variant and contents.
func (a Address) Equal(other Address) bool {
	if a.kind != other.kind {
		return false
	}
	switch a.kind {
	case KindIP:
		return a.ip.Equal(other.ip) && a.port == other.port
	case KindUnix, KindShm:
		return a.path == other.path
	default:
		return true
	}
}

// Hash produces a cheap, deterministic 64-bit xxhash digest of the
// address's String() form, so equal addresses hash equally.
func (a Address) Hash() uint64 {
	return xxhash.Sum64String(a.String())
}
