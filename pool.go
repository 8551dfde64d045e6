package ftp

import (
	"context"
	"sync"
	"time"
)

// maxIdleSiblingsHeld caps the number of idle sibling connections kept
// open beyond what's actively in use; anything beyond that is closed as
// soon as it's released.
const maxIdleSiblingsHeld = 1

// poolEntry tracks one sibling Session's availability. entries are kept
// in acquisition order so reclaim can walk oldest-first.
type poolEntry struct {
	session *Session
	busy    bool
	lastUse time.Time
}

// Pool hands out sibling control connections cloned from a root Session
// so multiple transfers can run concurrently. Siblings are authenticated
// and positioned in the same working directory as the root at the moment
// they're created.
type Pool struct {
	root *Session

	mu            sync.Mutex
	entries       []*poolEntry
	maxConcurrent int
	closed        bool
}

// NewPool builds a Pool rooted at s. s itself is never handed out by
// Acquire; it always returns a sibling.
func NewPool(s *Session) *Pool {
	p := &Pool{root: s, maxConcurrent: s.poolSize}
	s.pool = p
	return p
}

// Acquire returns an idle sibling, reusing the oldest idle one if any
// exists, or creating a new sibling if the pool has room to grow.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newErr("Pool.Acquire", ErrAlready, nil)
	}
	for _, e := range p.entries {
		if !e.busy {
			e.busy = true
			p.mu.Unlock()
			return e.session, nil
		}
	}
	if p.maxConcurrent > 0 && len(p.entries) >= p.maxConcurrent {
		p.mu.Unlock()
		return nil, newErr("Pool.Acquire", ErrNotReady, nil)
	}
	p.mu.Unlock()

	sib, err := p.generateSibling(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries = append(p.entries, &poolEntry{session: sib, busy: true})
	n := len(p.entries)
	p.mu.Unlock()
	if p.root.metrics != nil {
		p.root.metrics.PoolSize.Set(float64(n))
	}
	return sib, nil
}

// Release marks s idle again. If more than maxIdleSiblingsHeld siblings
// are now idle, the oldest idle ones beyond that limit are closed and
// dropped, FIFO.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.session == s {
			e.busy = false
			e.lastUse = time.Now()
			break
		}
	}

	idleCount := 0
	for _, e := range p.entries {
		if !e.busy {
			idleCount++
		}
	}
	for idleCount > maxIdleSiblingsHeld {
		idx := -1
		for i, e := range p.entries {
			if !e.busy {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		stale := p.entries[idx]
		p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
		go stale.session.Close()
		idleCount--
	}
	if p.root.metrics != nil {
		p.root.metrics.PoolSize.Set(float64(len(p.entries)))
	}
}

// generateSibling opens a fresh control connection to the same host with
// the same auth and TLS posture as root, then CWDs it to root's current
// directory so it starts a transfer from the same place.
func (p *Pool) generateSibling(ctx context.Context) (*Session, error) {
	root := p.root
	opts := []Option{}
	if root.tlsMode == tlsModeExplicit {
		opts = append(opts, WithExplicitTLS(root.tlsConfig))
	} else if root.tlsMode == tlsModeImplicit {
		opts = append(opts, WithImplicitTLS(root.tlsConfig))
	}
	opts = append(opts, WithTimeout(root.timeout))
	if root.idleTimeout > 0 {
		opts = append(opts, WithIdleTimeout(root.idleTimeout))
	}

	sib, err := Open(ctx, root.host, root.port, opts...)
	if err != nil {
		return nil, newErr("Pool.generateSibling", ErrConnection, err)
	}
	sib.useEPSV = root.useEPSV
	sib.useMLSD = root.useMLSD
	sib.log = root.log
	sib.listParsers = root.listParsers
	sib.rateLimit = root.rateLimit
	sib.metrics = root.metrics

	if err := sib.Auth(ctx, root.user, root.pass); err != nil {
		sib.Close()
		return nil, err
	}
	if cwd, err := root.Pwd(); err == nil {
		if err := sib.Cwd(cwd); err != nil {
			sib.Close()
			return nil, newErr("Pool.generateSibling", ErrNotReady, err)
		}
	}
	return sib, nil
}

// Close releases every sibling connection. It does not close the root
// Session; callers close that themselves.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
