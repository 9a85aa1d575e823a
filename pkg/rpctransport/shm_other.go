//go:build !linux

package rpctransport

// ShmMake falls back to a plain Unix-domain socket on platforms without a
// POSIX shm ring-buffer implementation wired up yet. The control-socket
// handshake is identical; only the eventual data-plane upgrade differs,
// and that upgrade is out of scope here (see shm_linux.go).
type ShmMake = NetMake
