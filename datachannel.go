package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// DataChannel is one data connection opened for a single transfer. It is
// always passive on our side (EPSV, falling back to PASV): this package
// never issues PORT/EPRT and never listens for an incoming data
// connection, by design — only client-initiated passive transfers are in
// scope.
type DataChannel struct {
	session   *Session
	transport Transport
	conn      net.Conn
}

// establishDataChannel negotiates a passive data connection on session's control
// channel: EPSV first (unless disabled or previously found unsupported),
// falling back to PASV on a 5xx. It does not send the transfer command
// itself (STOR/RETR/...); callers do that after prepare.
func (s *Session) establishDataChannel(ctx context.Context) (*DataChannel, error) {
	addr, err := s.enterPassiveMode()
	if err != nil {
		return nil, err
	}

	dialer := s.dialer
	if dialer == nil {
		dialer = (&net.Dialer{}).DialContext
	}
	conn, err := dialer(ctx, "tcp", addr)
	if err != nil {
		return nil, newErr("DataChannel", ErrConnection, err)
	}

	dc := &DataChannel{session: s, conn: conn}
	if err := dc.prepare(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return dc, nil
}

// enterPassiveMode returns "host:port" for the data connection, preferring
// EPSV and falling back to legacy PASV. A successful EPSV sticks for the
// remainder of the session; a server that rejects EPSV with a 5xx is
// remembered so later transfers go straight to PASV.
func (s *Session) enterPassiveMode() (string, error) {
	if s.useEPSV {
		port, err := s.enterExtendedPassive()
		if err == nil {
			return fmt.Sprintf("%s:%d", s.host, port), nil
		}
		var pe *ProtocolError
		if pe2, ok := err.(*Error); ok {
			if inner, ok2 := pe2.Err.(*ProtocolError); ok2 {
				pe = inner
			}
		}
		if pe == nil || !pe.Is5xx() {
			return "", err
		}
		s.useEPSV = false
	}
	return s.enterLegacyPassive()
}

func (s *Session) enterExtendedPassive() (int, error) {
	_, buf, err := s.sendCommandAndWait("EPSV", "", []Signal{SignalEnteringExtendedPassiveMode}, SignalEnteringExtendedPassiveMode)
	if err != nil {
		return 0, err
	}
	payload, err := ExtractParenthesized(string(buf), 64)
	if err != nil {
		return 0, err
	}
	return ParseEPSV(payload)
}

func (s *Session) enterLegacyPassive() (string, error) {
	_, buf, err := s.sendCommandAndWait("PASV", "", []Signal{SignalEnteringPassiveMode}, SignalEnteringPassiveMode)
	if err != nil {
		return "", err
	}
	payload, err := ExtractParenthesized(string(buf), 64)
	if err != nil {
		return "", err
	}
	addr, err := ParsePASV(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", addr.IP[0], addr.IP[1], addr.IP[2], addr.IP[3], addr.Port), nil
}

// prepare wraps the raw data connection in TLS when the control channel
// is protected, reusing the control channel's TLS session so servers
// that require session-reuse on the data channel (most of them, under
// strict FTPS policy) accept it.
func (dc *DataChannel) prepare(ctx context.Context) error {
	if dc.session.tlsMode == tlsModeNone {
		dc.transport = newPlainTransport(dc.conn, false)
		return nil
	}
	tconn := tls.Client(dc.conn, dc.session.cloneTLSConfig())
	if err := tconn.HandshakeContext(ctx); err != nil {
		return newErr("DataChannel", ErrTLSCouldNotInit, err)
	}
	dc.transport = newTLSTransport(tconn, false)
	return nil
}

func (dc *DataChannel) Read(p []byte) (int, error)  { return dc.transport.Read(p) }
func (dc *DataChannel) Write(p []byte) (int, error) { return dc.transport.Write(p) }

// Close shuts down the write half (so the remote sees EOF on STOR/APPE)
// and then closes the underlying connection.
func (dc *DataChannel) Close() error {
	_ = dc.transport.ShutdownWrite()
	return dc.transport.Close()
}

func (dc *DataChannel) SetDeadline(t time.Time) error {
	return dc.transport.SetReadDeadline(t)
}
