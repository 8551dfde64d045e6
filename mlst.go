package ftp

import (
	"fmt"
	"strings"
)

// Stat returns structured facts about a single file or directory via
// MLST (RFC 3659). The multi-line reply carries the status lines plus
// one indented fact line; only the fact line is parsed.
func (s *Session) Stat(path string) (*ListEntry, error) {
	_, buf, err := s.sendCommandAndWait("MLST", path, []Signal{SignalRequestedActionOkay}, SignalRequestedActionOkay)
	if err != nil {
		return nil, err
	}

	lines, _ := splitReplyLines(buf)
	entryLine := ""
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		entryLine = t
		break
	}
	if entryLine == "" {
		return nil, newErr("Stat", ErrUnexpected, fmt.Errorf("no entry line in MLST reply"))
	}

	facts, name, err := ParseMLSDLine(entryLine)
	if err != nil {
		return nil, err
	}
	e := &ListEntry{Name: name, Type: facts.Type}
	if facts.HasSize {
		e.Size = facts.Size
	}
	if facts.HasModify {
		e.ModTime, e.HasTime = facts.Modify, true
	}
	if facts.HasMode {
		e.UnixMode, e.HasMode = facts.UnixMode, true
	}
	return e, nil
}
