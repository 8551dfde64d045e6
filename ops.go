package ftp

import (
	"context"
	"fmt"
	"path"
)

// Noop sends NOOP, used both as a manual keepalive and by the automatic
// idle-timeout keepalive goroutine.
func (s *Session) Noop() error {
	_, _, err := s.sendCommandAndWait("NOOP", "", []Signal{SignalCommandOkay}, 0)
	return err
}

// Pwd returns the current working directory on the server.
func (s *Session) Pwd() (string, error) {
	_, buf, err := s.sendCommandAndWait("PWD", "", []Signal{SignalMkdirSuccessOrPWD}, SignalMkdirSuccessOrPWD)
	if err != nil {
		return "", err
	}
	return ParsePWDPath(string(buf))
}

// Cwd changes the current working directory.
func (s *Session) Cwd(path string) error {
	_, _, err := s.sendCommandAndWait("CWD", path, []Signal{SignalRequestedActionOkay}, 0)
	return err
}

// Mkdir creates a directory and returns its absolute path as reported by
// the server's 257 reply.
func (s *Session) Mkdir(path string) (string, error) {
	_, buf, err := s.sendCommandAndWait("MKD", path, []Signal{SignalMkdirSuccessOrPWD}, SignalMkdirSuccessOrPWD)
	if err != nil {
		return "", err
	}
	return ParsePWDPath(string(buf))
}

// Rmdir removes an empty directory.
func (s *Session) Rmdir(path string) error {
	_, _, err := s.sendCommandAndWait("RMD", path, []Signal{SignalRequestedActionOkay}, 0)
	return err
}

// Delete removes a file.
func (s *Session) Delete(path string) error {
	_, _, err := s.sendCommandAndWait("DELE", path, []Signal{SignalRequestedActionOkay}, 0)
	return err
}

// Rename moves from to to, using the RNFR/RNTO pair.
func (s *Session) Rename(from, to string) error {
	if _, _, err := s.sendCommandAndWait("RNFR", from, []Signal{SignalRequestFurtherInformation}, 0); err != nil {
		return err
	}
	_, _, err := s.sendCommandAndWait("RNTO", to, []Signal{SignalRequestedActionOkay}, 0)
	return err
}

// Size returns the size in bytes of the named file via the SIZE command,
// falling back to scanning the containing directory's listing for name
// when the server answers SIZE with a 5xx (many servers don't implement
// it for ASCII-mode-only or ambiguous files).
func (s *Session) Size(ctx context.Context, name string) (int64, error) {
	_, buf, err := s.sendCommandAndWait("SIZE", name, []Signal{SignalFileStatus}, SignalFileStatus)
	if err == nil {
		var n int64
		if _, scanErr := fmt.Sscanf(string(buf), "%d", &n); scanErr != nil {
			return 0, newErr("Size", ErrUnexpected, scanErr)
		}
		return n, nil
	}
	if !isRemote5xx(err) {
		return 0, err
	}
	return s.sizeLegacy(ctx, name)
}

// sizeLegacy locates name by scanning the listing of its containing
// directory, used as a fallback when the server's SIZE command fails.
func (s *Session) sizeLegacy(ctx context.Context, name string) (int64, error) {
	dir, base := path.Split(name)
	if dir == "" {
		dir = "."
	}
	entries, err := s.ContentsOfDirectory(ctx, dir)
	if err != nil {
		return 0, err
	}
	for e := entries; e != nil; e = e.Next {
		if e.Name == base {
			return e.Size, nil
		}
	}
	return 0, newErr("Size", ErrNotFound, fmt.Errorf("%s: not found in directory listing", name))
}

// Chmod sets Unix permissions on path via the SITE CHMOD extension. mode
// is the decimal digits of a Unix permission mode (e.g. 755), not octal.
func (s *Session) Chmod(path string, mode int) error {
	if mode < 0 || mode > 777 {
		return newErr("Chmod", ErrArguments, fmt.Errorf("mode %d out of range [0, 777]", mode))
	}
	arg := fmt.Sprintf("CHMOD %d %s", mode, path)
	_, _, err := s.sendCommandAndWait("SITE", arg, []Signal{SignalRequestedActionOkay, SignalCommandOkay}, 0)
	return err
}
