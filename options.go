package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Option configures a Session at Open time.
type Option func(*Session) error

// WithTimeout bounds how long any single sendAndWait may block waiting for
// a reply before the reader reports ErrTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		s.timeout = timeout
		return nil
	}
}

// WithIdleTimeout enables an automatic NOOP keepalive: if no command is
// sent on the session for longer than idle, a NOOP is issued in the
// background to keep the server from dropping the connection. Zero
// disables it (the default).
func WithIdleTimeout(idle time.Duration) Option {
	return func(s *Session) error {
		s.idleTimeout = idle
		return nil
	}
}

// WithExplicitTLS enables explicit TLS (AUTH TLS, then PBSZ 0 / PROT P) on
// the standard control port. A ClientSessionCache is added if config
// doesn't carry one, so the data channel can resume the control channel's
// TLS session.
func WithExplicitTLS(config *tls.Config) Option {
	return func(s *Session) error {
		if s.tlsMode == tlsModeImplicit {
			return fmt.Errorf("explicit TLS cannot be combined with implicit TLS")
		}
		if config == nil {
			config = &tls.Config{}
		}
		s.tlsConfig = config
		s.tlsMode = tlsModeExplicit
		return nil
	}
}

// WithImplicitTLS enables implicit TLS: the initial dial itself is a TLS
// handshake, typically against port 990.
func WithImplicitTLS(config *tls.Config) Option {
	return func(s *Session) error {
		if s.tlsMode == tlsModeExplicit {
			return fmt.Errorf("implicit TLS cannot be combined with explicit TLS")
		}
		if config == nil {
			config = &tls.Config{}
		}
		s.tlsConfig = config
		s.tlsMode = tlsModeImplicit
		return nil
	}
}

// tlsMode is the TLS posture of a Session's control channel.
type tlsMode int

const (
	tlsModeNone tlsMode = iota
	tlsModeExplicit
	tlsModeImplicit
)

// WithLogger sets the structured logger used for warnings (malformed
// replies, feature negotiation fallbacks, pool reclaim decisions). The
// default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		s.log = logger
		return nil
	}
}

// WithDialer overrides how the TCP connection to the control (and, by
// extension, data) channel is established.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(s *Session) error {
		s.dialer = dial
		return nil
	}
}

// WithDisableEPSV forces PASV for every data connection, skipping the
// EPSV attempt entirely. Useful for servers behind middleboxes that
// mishandle EPSV.
func WithDisableEPSV() Option {
	return func(s *Session) error {
		s.useEPSV = false
		return nil
	}
}

// WithDisableMLSD forces the LIST/NLST fallback path for directory
// listings even when the server advertises MLST support.
func WithDisableMLSD() Option {
	return func(s *Session) error {
		s.useMLSD = false
		return nil
	}
}

// WithCustomListParser prepends a parser to the listing-parser chain used
// by ContentsOfDirectory's LIST fallback, so it is tried before the
// built-in Unix/DOS/EPLF parsers.
func WithCustomListParser(parser ListingParser) Option {
	return func(s *Session) error {
		s.listParsers = append([]ListingParser{parser}, s.listParsers...)
		return nil
	}
}

// WithContentListingFilter controls whether ContentsOfDirectory drops MLSD
// entries whose type fact was given and is neither file nor dir (e.g.
// device nodes, sockets). Enabled by default; WithContentListingFilter(false)
// surfaces every entry the server lists.
func WithContentListingFilter(enabled bool) Option {
	return func(s *Session) error {
		s.filterListingTypes = enabled
		return nil
	}
}

// WithMetrics makes the session report to m, a Metrics set built (and
// registered) by NewMetrics. Passing nil (the default) leaves metrics
// collection disabled.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) error {
		s.metrics = m
		return nil
	}
}

// WithTransferRateLimit caps data-channel throughput at bytesPerSecond
// for every File opened on this session and its sibling pool.
func WithTransferRateLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		if bytesPerSecond <= 0 {
			return fmt.Errorf("rate limit must be positive")
		}
		s.rateLimit = bytesPerSecond
		return nil
	}
}

// WithPoolSize sets the maximum number of sibling connections a Pool
// built from this session will keep open concurrently, beyond the root
// session itself. The default is 4.
func WithPoolSize(n int) Option {
	return func(s *Session) error {
		if n < 0 {
			return fmt.Errorf("pool size must be non-negative")
		}
		s.poolSize = n
		return nil
	}
}
