// Package rpctransport implements spec §4.A: dialing/listening on the
// Address variants of pkg/rpcaddr, with connect-timeout enforcement and
// NODELAY on TCP, plus TLS and shared-memory variants sharing the same
// contract. TLS itself is glue over crypto/tls per spec §4.A "only its
// interface is specified" — the handshake is never reimplemented.
package rpctransport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
)

// Make is implemented by every dial/listen variant (plain, TLS, shm) so
// pkg/pool and pkg/client can construct a transport without caring which
// one backs a given Address.
type Make interface {
	Dial(ctx context.Context, addr rpcaddr.Address, connectTimeout time.Duration) (net.Conn, error)
	Listen(ctx context.Context, addr rpcaddr.Address) (net.Listener, error)
}

// NetMake is the default Make: stdlib net.Dialer/net.ListenConfig against
// TCP or Unix-domain sockets, matching spec §4.A "TCP connections set
// NODELAY" and "fails with transient I/O error on connect failure,
// timeout if connect_timeout is set and exceeded".
type NetMake struct{}

// Dial dials addr, applying connectTimeout (if > 0) as a deadline on the
// dial itself. TCP connections have Nagle's algorithm disabled.
func (NetMake) Dial(ctx context.Context, addr rpcaddr.Address, connectTimeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: connectTimeout}

	network, address := netAddr(addr)
	if network == "" {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "unsupported address kind for net dial")
	}

	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeConnectTimeout, "dial timed out")
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeConnectFailed, "dial failed")
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// Listen accepts connections on addr using net.ListenConfig (spec §4.A
// "make_incoming(addr) -> incoming_stream").
func (NetMake) Listen(ctx context.Context, addr rpcaddr.Address) (net.Listener, error) {
	network, address := netAddr(addr)
	if network == "" {
		return nil, rpcerr.Transport(rpcerr.CodeConnectFailed, "unsupported address kind for net listen")
	}
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeConnectFailed, "listen failed")
	}
	return lis, nil
}

func netAddr(addr rpcaddr.Address) (network, address string) {
	switch addr.Kind() {
	case rpcaddr.KindIP:
		return "tcp", addr.String()
	case rpcaddr.KindUnix, rpcaddr.KindShm:
		return "unix", addr.Path()
	default:
		return "", ""
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}

// TLSMake wraps NetMake with a crypto/tls handshake on dial, and a
// tls.Listener on accept. A handshake failure surfaces as
// Transport(TLSHandshake) per spec §4.A.
type TLSMake struct {
	Config *tls.Config
	Inner  Make
}

func NewTLSMake(cfg *tls.Config) TLSMake {
	return TLSMake{Config: cfg, Inner: NetMake{}}
}

func (m TLSMake) Dial(ctx context.Context, addr rpcaddr.Address, connectTimeout time.Duration) (net.Conn, error) {
	raw, err := m.Inner.Dial(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(raw, m.Config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeTLSHandshake, "tls handshake failed")
	}
	return tlsConn, nil
}

func (m TLSMake) Listen(ctx context.Context, addr rpcaddr.Address) (net.Listener, error) {
	lis, err := m.Inner.Listen(ctx, addr)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(lis, m.Config), nil
}
