package ftp

import (
	"context"
	"fmt"
	"io"

	"github.com/corvusftp/ftp/internal/ratelimit"
)

// TransferMode is the direction and positioning of a data transfer.
type TransferMode int

const (
	// ModeRetrieve downloads via RETR.
	ModeRetrieve TransferMode = iota
	// ModeStore uploads via STOR, truncating any existing remote file.
	ModeStore
	// ModeAppend uploads via APPE, appending to any existing remote file.
	ModeAppend
)

// File is an open data transfer bound to a borrowed Session and its
// DataChannel. Reads and writes are blocking; there is no async/streaming
// surface (a Non-goal).
type File struct {
	session *Session
	dc      *DataChannel
	mode    TransferMode
	pool    *Pool // non-nil if session was borrowed from a Pool

	reader io.Reader
	writer io.Writer
}

// FileOption configures a single Fopen call.
type FileOption func(*fileConfig)

type fileConfig struct {
	restartAt int64
	progress  func(int64)
}

// WithRestartAt requests a REST before the transfer command, resuming a
// RETR/STOR/APPE at the given byte offset. REST is sent fire-and-forget:
// its own reply is never read or waited for, since many servers never
// send one. Any problem with the restart surfaces instead through the
// following transfer command's own reply.
func WithRestartAt(offset int64) FileOption {
	return func(c *fileConfig) { c.restartAt = offset }
}

// WithProgress registers a callback invoked with the cumulative byte
// count after every Read/Write on the resulting File.
func WithProgress(cb func(bytesTransferred int64)) FileOption {
	return func(c *fileConfig) { c.progress = cb }
}

// Fopen opens path for the given transfer mode on s, using a sibling
// session from pool when pool is non-nil and file_transfer_second_connection
// semantics apply; pass a nil pool to transfer on s itself.
func Fopen(ctx context.Context, s *Session, pool *Pool, path string, mode TransferMode, opts ...FileOption) (*File, error) {
	cfg := fileConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	worker := s
	if pool != nil {
		sib, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		worker = sib
	}

	dc, err := worker.establishDataChannel(ctx)
	if err != nil {
		if pool != nil {
			pool.Release(worker)
		}
		return nil, err
	}

	if cfg.restartAt > 0 {
		if err := worker.writeCommand("REST", fmt.Sprintf("%d", cfg.restartAt)); err != nil {
			dc.Close()
			if pool != nil {
				pool.Release(worker)
			}
			return nil, err
		}
	}

	if err := worker.sendTransferCommand(transferCommand(mode), path); err != nil {
		dc.Close()
		if pool != nil {
			pool.Release(worker)
		}
		return nil, err
	}

	f := &File{session: worker, dc: dc, mode: mode, pool: pool}

	var limiter *ratelimit.Limiter
	if worker.rateLimit > 0 {
		limiter = ratelimit.New(worker.rateLimit)
	}
	switch mode {
	case ModeRetrieve:
		var r io.Reader = dc
		r = ratelimit.NewReader(r, limiter)
		r = &ProgressReader{Reader: r, Callback: f.reportProgress(cfg.progress, "download")}
		f.reader = r
	case ModeStore, ModeAppend:
		var w io.Writer = dc
		w = ratelimit.NewWriter(w, limiter)
		w = &ProgressWriter{Writer: w, Callback: f.reportProgress(cfg.progress, "upload")}
		f.writer = w
	}
	return f, nil
}

// reportProgress returns a callback that forwards to the caller's own
// progress callback (if any) and, when metrics are enabled, records the
// delta against BytesTransferred.
func (f *File) reportProgress(userCB func(int64), direction string) func(int64) {
	var last int64
	return func(total int64) {
		if f.session.metrics != nil {
			f.session.metrics.BytesTransferred.WithLabelValues(direction).Add(float64(total - last))
			last = total
		}
		if userCB != nil {
			userCB(total)
		}
	}
}

func transferCommand(mode TransferMode) string {
	switch mode {
	case ModeStore:
		return "STOR"
	case ModeAppend:
		return "APPE"
	default:
		return "RETR"
	}
}

// sendTransferCommand writes the transfer command and waits for the
// preliminary 1xx reply that signals the data connection is opening,
// without respawning a fresh control-channel reader afterward: the
// control reader stays parked until Close reads the final 226/4xx/5xx.
func (s *Session) sendTransferCommand(cmd, path string) error {
	s.stateMu.Lock()
	s.disableReader = true
	s.stateMu.Unlock()

	_, _, err := s.sendCommandAndWait(cmd, path, []Signal{SignalDataConnOpening, SignalAboutToOpenDataConn}, 0)
	if err != nil {
		s.stateMu.Lock()
		s.disableReader = false
		s.stateMu.Unlock()
		s.spawnReader()
		return err
	}
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, newErr("File.Read", ErrArguments, fmt.Errorf("file not opened for reading"))
	}
	return f.reader.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	if f.writer == nil {
		return 0, newErr("File.Write", ErrArguments, fmt.Errorf("file not opened for writing"))
	}
	return f.writer.Write(p)
}

// Close closes the data channel, then waits for the control channel's
// final transfer-complete reply (226) before returning the session (if
// borrowed) to its pool.
func (f *File) Close() error {
	dcErr := f.dc.Close()

	s := f.session
	s.stateMu.Lock()
	s.disableReader = false
	s.stateMu.Unlock()
	s.spawnReader()

	_, _, waitErr := s.sendAndWait("Fclose", []Signal{SignalTransferComplete}, 0)
	if pe, ok := waitErr.(*ProtocolError); ok {
		op := transferCommand(f.mode)
		waitErr = newErr(op, remoteErrKind(op, pe.Code, ErrUnexpected), pe)
	}

	if f.pool != nil {
		f.pool.Release(s)
	}

	if dcErr != nil {
		return dcErr
	}
	return waitErr
}
