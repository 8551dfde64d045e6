package ftp

import (
	"fmt"
	"strings"
	"time"
)

// maxTriggers bounds the number of reply codes that can be armed at once;
// every operation in this package arms at most two.
const maxTriggers = 10

// reader is the background, byte-oriented worker that turns the control
// socket's line-based reply stream into parsed Signals. Exactly one reader
// goroutine runs per Session whenever its status is Connecting, Up,
// Waiting, or AsyncWaiting, with two exceptions: the short window during a
// TLS handshake (see upgradeToTLS), and a data transfer, from the
// preliminary 1xx reply (see sendTransferCommand) until File.Close or the
// listing code respawns it to read the final reply. A reader exits as soon
// as it sees a line matching an armed trigger or, while triggers are armed,
// an error code; it is joined by the foreground in sendAndWait, and is then
// respawned for the next wait window.
func (s *Session) spawnReader() {
	s.stateMu.Lock()
	done := make(chan struct{})
	s.readerDone = done
	s.stateMu.Unlock()

	go func() {
		defer close(done)

		var acc ByteBuffer
		var b [1]byte
		for {
			n, err := s.transport.Read(b[:])
			if err != nil {
				if isTimeoutErr(err) {
					s.stateMu.Lock()
					cancel := s.status == StatusDown || s.termination
					waiting := s.status == StatusWaiting
					elapsed := time.Since(s.waitStart)
					timeout := s.timeout
					s.stateMu.Unlock()
					if cancel {
						return
					}
					if waiting && elapsed > timeout {
						s.stateMu.Lock()
						s.readerErr = newErr("wait", ErrTimeout, err)
						s.stateMu.Unlock()
						return
					}
					continue
				}
				s.stateMu.Lock()
				s.readerErr = newErr("read", ErrSocket, err)
				s.stateMu.Unlock()
				return
			}
			if n == 0 {
				continue
			}

			switch b[0] {
			case '\n':
				continue // tolerate stray LF
			case '\r':
				var b2 [1]byte
				n2, err2 := s.transport.Read(b2[:])
				if err2 != nil || n2 != 1 || b2[0] != '\n' {
					s.stateMu.Lock()
					s.readerErr = newErr("read", ErrUnexpected, fmt.Errorf("unexpected byte after CR"))
					s.stateMu.Unlock()
					return
				}
				exit := s.processLine(acc.Bytes())
				acc.Reset()
				if exit {
					return
				}
			default:
				acc.AppendByte(b[0])
			}
		}
	}()
}

// processLine classifies one complete reply line, updates session state,
// and reports whether the reader should exit: while triggers are armed,
// either the line is an error reply or it matches one of them. This runs
// under stateMu, the processing lock, so the foreground never observes a
// half-updated lastSignal/lastAnswerBuf pair.
//
// A reply spanning multiple physical lines (RFC 2389: "211-Features:" ...
// "211 End") is buffered across calls until its closing line arrives;
// only the closing line can match a trigger or complete an answer lock.
func (s *Session) processLine(line []byte) bool {
	if len(line) < 3 {
		return false
	}
	code := Classify(line[:3])

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.RepliesProcessed.Inc()
	}

	isOpening := code != MalformedSignal && len(line) >= 4 && line[3] == '-'
	isClosing := s.multilineCode != 0 && code == s.multilineCode && len(line) >= 4 && line[3] == ' '

	switch {
	case s.multilineCode != 0 && !isClosing:
		s.multilineBuf = append(s.multilineBuf, string(line))
		return false
	case isOpening:
		s.multilineCode = code
		s.multilineBuf = nil
		return false
	}

	s.lastSignal = code
	isErr := IsError(code)
	if isErr {
		s.internalErr = true
	}

	if s.lastAnswerLock != 0 && s.lastAnswerLock == code {
		if s.lastAnswerBuf != nil {
			s.logger().Warn("overwriting unconsumed last-answer buffer")
		}
		switch {
		case len(s.multilineBuf) > 0:
			s.lastAnswerBuf = []byte(strings.Join(s.multilineBuf, "\n"))
		case len(line) >= 4:
			payload := make([]byte, len(line)-4)
			copy(payload, line[4:])
			s.lastAnswerBuf = payload
		default:
			s.lastAnswerBuf = []byte{}
		}
	}
	s.multilineCode = 0
	s.multilineBuf = nil

	if s.hasTriggersLocked() {
		if isErr || s.isTriggerLocked(code) {
			return true
		}
	}
	return false
}

func (s *Session) hasTriggersLocked() bool {
	return s.triggers[0] != 0
}

func (s *Session) isTriggerLocked(code Signal) bool {
	for _, t := range s.triggers {
		if t == 0 {
			return false
		}
		if t == code {
			return true
		}
	}
	return false
}

func (s *Session) setTriggersLocked(codes []Signal) {
	var arr [maxTriggers]Signal
	n := copy(arr[:], codes)
	_ = n
	s.triggers = arr
}

func (s *Session) resetTriggersLocked() {
	s.triggers = [maxTriggers]Signal{}
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
