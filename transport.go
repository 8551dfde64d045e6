package ftp

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/higebu/netfd"
)

// controlPollInterval is the short receive timeout the control transport
// uses so the reader goroutine can periodically check for cancellation and
// wait-deadline expiry without blocking forever in a read syscall.
const controlPollInterval = 1 * time.Second

// dataReadTimeout is the longer timeout used on the data transport, where
// there is no cooperative polling loop to interrupt.
const dataReadTimeout = 60 * time.Second

// Transport abstracts the control or data socket, plain or TLS.
type Transport interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	SetReadDeadline(t time.Time) error
	ShutdownWrite() error
	Close() error
	// ConnectionState reports the TLS state for session-reuse purposes; it
	// returns ok=false for a plain transport.
	ConnectionState() (tls.ConnectionState, bool)
}

// plainTransport wraps a raw net.Conn.
type plainTransport struct {
	conn net.Conn
}

func newPlainTransport(conn net.Conn, isControl bool) *plainTransport {
	tuneSocketTimeout(conn, isControl)
	return &plainTransport{conn: conn}
}

func (t *plainTransport) Read(buf []byte) (int, error)  { return t.conn.Read(buf) }
func (t *plainTransport) Write(buf []byte) (int, error) { return t.conn.Write(buf) }
func (t *plainTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}
func (t *plainTransport) ShutdownWrite() error {
	if tc, ok := t.conn.(interface{ CloseWrite() error }); ok {
		return tc.CloseWrite()
	}
	return nil
}
func (t *plainTransport) Close() error { return t.conn.Close() }
func (t *plainTransport) ConnectionState() (tls.ConnectionState, bool) {
	return tls.ConnectionState{}, false
}

// tlsTransport wraps a *tls.Conn, forwarding reads/writes to the TLS
// session and exposing its state for session-reuse when opening the data
// channel's TLS layer.
type tlsTransport struct {
	conn *tls.Conn
}

func newTLSTransport(conn *tls.Conn, isControl bool) *tlsTransport {
	tuneSocketTimeout(conn, isControl)
	return &tlsTransport{conn: conn}
}

func (t *tlsTransport) Read(buf []byte) (int, error)  { return t.conn.Read(buf) }
func (t *tlsTransport) Write(buf []byte) (int, error) { return t.conn.Write(buf) }
func (t *tlsTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}
func (t *tlsTransport) ShutdownWrite() error {
	return t.conn.CloseWrite()
}
func (t *tlsTransport) Close() error { return t.conn.Close() }
func (t *tlsTransport) ConnectionState() (tls.ConnectionState, bool) {
	return t.conn.ConnectionState(), true
}

// tuneSocketTimeout sets SO_RCVTIMEO at the socket level via the raw file
// descriptor, on top of the portable SetReadDeadline each Read call
// already uses. This mirrors the control channel's 1-second poll interval
// at the kernel level, which some platforms honor more precisely under
// heavy concurrent load than a per-call deadline alone.
// Best effort: conn types or platforms netfd can't resolve a descriptor
// for are silently skipped, and SetReadDeadline remains authoritative.
func tuneSocketTimeout(conn net.Conn, isControl bool) {
	timeout := dataReadTimeout
	if isControl {
		timeout = controlPollInterval
	}
	defer func() { recover() }() // netfd panics on unsupported conn kinds on some platforms
	fd := netfd.GetFdFromConn(conn)
	if fd <= 0 {
		return
	}
	_ = setsockoptTimeout(fd, timeout)
}
