package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a Session's control channel.
type SessionStatus int

const (
	StatusDown SessionStatus = iota
	StatusConnecting
	StatusUp
	StatusWaiting
	StatusAsyncWaiting
)

func (st SessionStatus) String() string {
	switch st {
	case StatusDown:
		return "down"
	case StatusConnecting:
		return "connecting"
	case StatusUp:
		return "up"
	case StatusWaiting:
		return "waiting"
	case StatusAsyncWaiting:
		return "async-waiting"
	default:
		return "unknown"
	}
}

// Session is one FTP control connection: the host/port it is dialed to,
// the control Transport, the background reader's shared state, and the
// negotiated feature set. A Session is not safe for concurrent use by
// multiple goroutines issuing commands at once — callers that need
// concurrent transfers borrow sibling sessions from a Pool instead.
type Session struct {
	id     string
	host   string
	port   int
	dialer func(ctx context.Context, network, addr string) (net.Conn, error)

	tlsConfig    *tls.Config
	tlsMode      tlsMode
	sessionCache tls.ClientSessionCache

	transport   Transport
	timeout     time.Duration
	idleTimeout time.Duration
	rateLimit   int64
	poolSize    int

	log *slog.Logger

	features map[string]string

	listParsers        []ListingParser
	useEPSV            bool
	useMLSD            bool
	filterListingTypes bool

	keepaliveStop chan struct{}
	keepaliveDone chan struct{}

	// stateMu guards every field the reader goroutine touches.
	stateMu    sync.Mutex
	status     SessionStatus
	triggers   [maxTriggers]Signal
	lastAnswerLock Signal
	lastSignal     Signal
	lastAnswerBuf  []byte
	internalErr    bool
	termination    bool
	waitStart      time.Time
	readerErr      error
	readerDone     chan struct{}
	disableReader  bool

	// multilineCode/multilineBuf track an in-progress RFC 2389 multi-line
	// reply ("211-Features:" ... "211 End"): zero when no such reply is
	// open. Continuation lines are buffered here until the closing line
	// arrives with the same code and a space in the fourth column.
	multilineCode Signal
	multilineBuf  []string

	// pool is the Pool rooted at this Session; NewPool sets it on the root.
	// Sibling sessions opened by the Pool leave it nil.
	pool *Pool

	// user/pass are retained (not logged) so a Pool can authenticate
	// sibling connections the same way as the root.
	user, pass string

	metrics *Metrics
}

func (s *Session) logger() *slog.Logger {
	l := s.log
	if l == nil {
		l = slog.Default()
	}
	return l.With("session_id", s.id)
}

// Open dials host:port, starts the reader, and waits for the initial
// greeting (220). It does not authenticate; call Auth next.
func Open(ctx context.Context, host string, port int, opts ...Option) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		host:    host,
		port:    port,
		timeout:            30 * time.Second,
		useEPSV:            true,
		useMLSD:            true,
		filterListingTypes: true,
		poolSize:           4,
		dialer:             (&net.Dialer{}).DialContext,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, newErr("Open", ErrArguments, err)
		}
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := s.dialer(ctx, "tcp", addr)
	if err != nil {
		return nil, newErr("Open", ErrConnection, err)
	}

	s.stateMu.Lock()
	s.status = StatusConnecting
	s.stateMu.Unlock()

	if s.tlsMode == tlsModeImplicit {
		tconn := tls.Client(conn, s.cloneTLSConfig())
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, newErr("Open", ErrTLSCouldNotInit, err)
		}
		s.transport = newTLSTransport(tconn, true)
	} else {
		s.transport = newPlainTransport(conn, true)
	}

	s.spawnReader()
	if _, _, err := s.sendAndWait("CONNECT", []Signal{SignalServiceReady}, 0); err != nil {
		s.transport.Close()
		if pe, ok := err.(*ProtocolError); ok {
			return nil, newErr("Open", ErrNoService, pe)
		}
		return nil, err
	}

	s.stateMu.Lock()
	s.status = StatusUp
	s.stateMu.Unlock()

	if s.tlsMode == tlsModeExplicit {
		if err := s.upgradeToTLS(); err != nil {
			s.transport.Close()
			return nil, err
		}
	}

	if err := s.loadFeatures(); err != nil {
		s.logger().Warn("FEAT negotiation failed, proceeding without it", "error", err)
	}
	s.negotiateTransferMode()

	if s.idleTimeout > 0 {
		s.startKeepalive()
	}

	return s, nil
}

// startKeepalive runs a ticker that issues Noop whenever the session has
// gone idle for longer than idleTimeout, regardless of whether this
// Session is a pool root or a sibling.
func (s *Session) startKeepalive() {
	s.keepaliveStop = make(chan struct{})
	s.keepaliveDone = make(chan struct{})
	interval := s.idleTimeout
	if interval > time.Second {
		interval = interval / 2
	}
	go func() {
		defer close(s.keepaliveDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var lastActivity time.Time
		for {
			select {
			case <-s.keepaliveStop:
				return
			case <-ticker.C:
				s.stateMu.Lock()
				idle := time.Since(s.waitStart)
				busy := s.status == StatusWaiting
				s.stateMu.Unlock()
				if busy || idle < s.idleTimeout {
					continue
				}
				if lastActivity.IsZero() || time.Since(lastActivity) >= s.idleTimeout {
					if err := s.Noop(); err != nil {
						s.logger().Warn("keepalive NOOP failed", "error", err)
						return
					}
					lastActivity = time.Now()
				}
			}
		}
	}()
}

func (s *Session) stopKeepalive() {
	if s.keepaliveStop == nil {
		return
	}
	close(s.keepaliveStop)
	<-s.keepaliveDone
}

// cloneTLSConfig returns the configured tls.Config, or a default one with
// a shared ClientSessionCache so the data channel can resume the control
// channel's TLS session.
func (s *Session) cloneTLSConfig() *tls.Config {
	cfg := s.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ClientSessionCache == nil {
		if s.sessionCache == nil {
			s.sessionCache = tls.NewLRUClientSessionCache(8)
		}
		cfg.ClientSessionCache = s.sessionCache
	}
	cfg.ServerName = s.host
	return cfg
}

// upgradeToTLS performs AUTH TLS, PBSZ 0, PROT P. PBSZ and PROT are each
// retried once on any failure, since some servers answer "not ready" to
// the first PBSZ immediately after the handshake.
func (s *Session) upgradeToTLS() error {
	s.stateMu.Lock()
	s.disableReader = true
	s.stateMu.Unlock()

	if _, _, err := s.sendCommandAndWait("AUTH", "TLS", []Signal{SignalTLSSuccessful}, 0); err != nil {
		s.stateMu.Lock()
		s.disableReader = false
		s.stateMu.Unlock()
		return newErr("Auth", ErrTLSCouldNotInit, err)
	}

	plain, ok := s.transport.(*plainTransport)
	if !ok {
		return newErr("Auth", ErrTLSCouldNotInit, fmt.Errorf("control transport is not plain"))
	}
	tconn := tls.Client(plain.conn, s.cloneTLSConfig())
	if err := tconn.HandshakeContext(context.Background()); err != nil {
		return newErr("Auth", ErrTLSCouldNotInit, err)
	}
	s.transport = newTLSTransport(tconn, true)

	s.stateMu.Lock()
	s.disableReader = false
	s.stateMu.Unlock()
	s.spawnReader()

	if err := s.sendPBSZAndPROTWithRetry(); err != nil {
		return err
	}
	return nil
}

func (s *Session) sendPBSZAndPROTWithRetry() error {
	_, _, err := s.sendCommandAndWait("PBSZ", "0", []Signal{SignalCommandOkay}, 0)
	if err != nil {
		// one retry on a transient server hiccup right after the handshake
		if _, _, err = s.sendCommandAndWait("PBSZ", "0", []Signal{SignalCommandOkay}, 0); err != nil {
			return newErr("Auth", ErrTLSCouldNotInit, err)
		}
	}
	if _, _, err = s.sendCommandAndWait("PROT", "P", []Signal{SignalCommandOkay}, 0); err != nil {
		if _, _, err = s.sendCommandAndWait("PROT", "P", []Signal{SignalCommandOkay}, 0); err != nil {
			return newErr("Auth", ErrTLSCouldNotInit, err)
		}
	}
	return nil
}

// Auth logs in with USER/PASS, handling the 331-then-PASS sequence and
// the case where the server accepts USER alone with 230.
func (s *Session) Auth(ctx context.Context, user, pass string) error {
	sig, _, err := s.sendCommandAndWait("USER", user, []Signal{SignalLoggedIn, SignalPasswordRequired}, 0)
	if err != nil {
		return newErr("Auth", ErrWrongAuth, err)
	}
	if sig == SignalLoggedIn {
		s.user, s.pass = user, pass
		return nil
	}
	if _, _, err := s.sendCommandAndWait("PASS", pass, []Signal{SignalLoggedIn}, 0); err != nil {
		return newErr("Auth", ErrWrongAuth, err)
	}
	s.user, s.pass = user, pass
	return nil
}

// sendAndWait arms triggers (and optionally an answer lock), sends no
// bytes itself — callers write the command first via sendCommandAndWait —
// and blocks until the reader exits having matched a trigger, hit an
// error reply, or failed at the transport level.
func (s *Session) sendAndWait(op string, triggers []Signal, answerLock Signal) (Signal, []byte, error) {
	s.stateMu.Lock()
	if s.status != StatusUp && s.status != StatusConnecting {
		s.stateMu.Unlock()
		return 0, nil, newErr(op, ErrNotReady, fmt.Errorf("session not ready"))
	}
	s.setTriggersLocked(triggers)
	s.lastAnswerLock = answerLock
	s.lastAnswerBuf = nil
	s.status = StatusWaiting
	s.readerErr = nil
	s.internalErr = false
	s.waitStart = time.Now()
	done := s.readerDone
	s.stateMu.Unlock()

	<-done

	s.stateMu.Lock()
	readerErr := s.readerErr
	sig := s.lastSignal
	buf := s.lastAnswerBuf
	started := s.waitStart
	s.resetTriggersLocked()
	s.lastAnswerLock = 0
	disableReader := s.disableReader
	s.status = StatusUp
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.WaitLatency.Observe(time.Since(started).Seconds())
	}

	if readerErr == nil && !disableReader {
		s.spawnReader()
	}
	if readerErr != nil {
		return sig, buf, readerErr
	}
	if IsError(sig) {
		return sig, buf, &ProtocolError{Command: op, Code: sig}
	}
	return sig, buf, nil
}

// writeCommand writes "op arg\r\n" (arg may be empty) to the control
// transport without arming any trigger or waiting for a reply. Used for
// commands whose own reply is deliberately not surfaced, relying on a
// later command's trigger wait to catch any problem instead.
func (s *Session) writeCommand(op, arg string) error {
	line := op
	if arg != "" {
		line += " " + arg
	}
	line += "\r\n"
	if _, err := s.transport.Write([]byte(line)); err != nil {
		return newErr(op, ErrWrite, err)
	}
	return nil
}

// sendCommandAndWait writes "op arg\r\n" (arg may be empty) then calls
// sendAndWait, translating a matched error reply into the operation's
// ErrKind via remoteErrKind.
func (s *Session) sendCommandAndWait(op, arg string, triggers []Signal, answerLock Signal) (Signal, []byte, error) {
	if err := s.writeCommand(op, arg); err != nil {
		return 0, nil, err
	}
	sig, buf, err := s.sendAndWait(op, triggers, answerLock)
	if err != nil {
		if pe, ok := err.(*ProtocolError); ok {
			kind := remoteErrKind(op, pe.Code, ErrUnexpected)
			return sig, buf, newErr(op, kind, pe)
		}
		return sig, buf, err
	}
	return sig, buf, nil
}

// Close sends QUIT best-effort and tears down the control transport. It
// does not touch the siblings of a Pool rooted at this Session: they are
// neither returned nor closed here; use Pool.Close to tear down an entire
// pool.
func (s *Session) Close() error {
	s.stopKeepalive()

	s.stateMu.Lock()
	s.termination = true
	s.stateMu.Unlock()

	_, _, _ = s.sendCommandAndWait("QUIT", "", []Signal{SignalGoodbye}, 0)

	s.stateMu.Lock()
	s.status = StatusDown
	s.stateMu.Unlock()

	return s.transport.Close()
}

func (s *Session) loadFeatures() error {
	_, buf, err := s.sendCommandAndWait("FEAT", "", []Signal{SignalFeatureList}, SignalFeatureList)
	if err != nil {
		return err
	}
	s.features = parseFeatureLines(buf)
	return nil
}

// HasFeature reports whether the server advertised name in its FEAT reply.
func (s *Session) HasFeature(name string) bool {
	_, ok := s.features[name]
	return ok
}

func parseFeatureLines(buf []byte) map[string]string {
	out := map[string]string{}
	lines, _ := splitReplyLines(buf)
	for _, l := range lines {
		l = trimLeadingSpace(l)
		if l == "" {
			continue
		}
		name, arg, _ := cutSpace(l)
		out[name] = arg
	}
	return out
}

func trimLeadingSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	return s
}

func cutSpace(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// negotiateTransferMode downgrades useEPSV/useMLSD to false when the
// server's FEAT reply (if any was obtained) does not advertise support.
func (s *Session) negotiateTransferMode() {
	if s.features == nil {
		return
	}
	if s.useEPSV && !s.HasFeature("EPSV") {
		s.useEPSV = false
	}
	if s.useMLSD && !s.HasFeature("MLST") {
		s.useMLSD = false
	}
}
