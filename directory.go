package ftp

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"
)

// ListEntry is one directory entry, linked to the next so a whole
// directory listing can be handed back as a single chain without an
// intermediate slice allocation.
type ListEntry struct {
	Name     string
	Type     EntryType
	Size     int64
	ModTime  time.Time
	HasTime  bool
	UnixMode int
	HasMode  bool
	Target   string // symlink target, LIST-derived listings only
	Next     *ListEntry
}

// ListingParser parses one LIST-format listing line into a ListEntry.
// Custom parsers registered via WithCustomListParser are tried first.
type ListingParser interface {
	Parse(line string) (*ListEntry, bool)
}

// ContentsOfDirectory lists path, preferring MLSD (RFC 3659) when the
// session has negotiated support for it and falling back to LIST (parsed
// by the registered ListingParser chain) on an MLSD 5xx, and remembers
// the downgrade so later calls skip straight to LIST.
func (s *Session) ContentsOfDirectory(ctx context.Context, path string) (*ListEntry, error) {
	if s.useMLSD {
		data, err := s.readDataCommand(ctx, "MLSD", path)
		if err == nil {
			return parseMLSDListing(data, s.filterListingTypes), nil
		}
		if !isRemote5xx(err) {
			return nil, err
		}
		s.useMLSD = false
	}
	data, err := s.readDataCommand(ctx, "LIST", path)
	if err != nil {
		return nil, err
	}
	return parseListListing(data, s.listParsers), nil
}

// NameList returns the plain names from NLST, one per line.
func (s *Session) NameList(ctx context.Context, path string) ([]string, error) {
	data, err := s.readDataCommand(ctx, "NLST", path)
	if err != nil {
		return nil, err
	}
	lines, _ := splitReplyLines(data)
	var names []string
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			names = append(names, t)
		}
	}
	return names, nil
}

// ModTime returns a file's modification time via MDTM.
func (s *Session) ModTime(path string) (time.Time, error) {
	_, buf, err := s.sendCommandAndWait("MDTM", path, []Signal{SignalFileStatus}, SignalFileStatus)
	if err != nil {
		return time.Time{}, err
	}
	ts := strings.TrimSpace(string(buf))
	if i := strings.IndexByte(ts, '.'); i != -1 {
		ts = ts[:i]
	}
	t, err := time.Parse(mlsdTimeLayout, ts)
	if err != nil {
		return time.Time{}, newErr("ModTime", ErrUnexpected, err)
	}
	return t.UTC(), nil
}

// SetModTime sets a file's modification time via MFMT.
func (s *Session) SetModTime(path string, t time.Time) error {
	arg := t.UTC().Format(mlsdTimeLayout) + " " + path
	_, _, err := s.sendCommandAndWait("MFMT", arg, []Signal{SignalFileStatus}, 0)
	return err
}

// readDataCommand runs a data-connection command that produces a listing
// or similar bulk reply (LIST, NLST, MLSD): it opens the data channel,
// issues the command, drains it fully, then waits for the control
// channel's final transfer-complete reply, reusing the same
// silence-the-control-reader-during-transfer technique as File.
func (s *Session) readDataCommand(ctx context.Context, cmd, arg string) ([]byte, error) {
	dc, err := s.establishDataChannel(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sendTransferCommand(cmd, arg); err != nil {
		dc.Close()
		return nil, err
	}
	data, readErr := io.ReadAll(dc)
	dc.Close()

	s.stateMu.Lock()
	s.disableReader = false
	s.stateMu.Unlock()
	s.spawnReader()

	_, _, waitErr := s.sendAndWait(cmd, []Signal{SignalTransferComplete}, 0)
	if readErr != nil {
		return nil, newErr(cmd, ErrUnexpected, readErr)
	}
	if pe, ok := waitErr.(*ProtocolError); ok {
		waitErr = newErr(cmd, remoteErrKind(cmd, pe.Code, ErrUnexpected), pe)
	}
	if waitErr != nil {
		return data, waitErr
	}
	return data, nil
}

func isRemote5xx(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	pe, ok := e.Err.(*ProtocolError)
	return ok && pe.Is5xx()
}

func parseMLSDListing(data []byte, filterOther bool) *ListEntry {
	lines, _ := splitReplyLines(data)
	var head, tail *ListEntry
	for _, line := range lines {
		if line == "" {
			continue
		}
		facts, name, err := ParseMLSDLine(line)
		if err != nil || name == "." || name == ".." {
			continue
		}
		if filterOther && facts.HasType && facts.Type == EntryOther {
			continue
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
		if head == nil {
			head, tail = e, e
		} else {
			tail.Next = e
			tail = e
		}
	}
	return head
}

func parseListListing(data []byte, custom []ListingParser) *ListEntry {
	parsers := append(append([]ListingParser{}, custom...), defaultListParsers...)
	lines, _ := splitReplyLines(data)
	var head, tail *ListEntry
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		e := parseOneListLine(line, parsers)
		if e == nil || e.Name == "." || e.Name == ".." {
			continue
		}
		if head == nil {
			head, tail = e, e
		} else {
			tail.Next = e
			tail = e
		}
	}
	return head
}

func parseOneListLine(line string, parsers []ListingParser) *ListEntry {
	for _, p := range parsers {
		if e, ok := p.Parse(line); ok {
			return e
		}
	}
	return &ListEntry{Name: line, Type: EntryOther}
}

var defaultListParsers = []ListingParser{
	&eplfParser{},
	&dosParser{},
	&unixParser{},
}

// unixParser parses `ls -l`-style lines, 8- or 9-field, symbolic or
// numeric permission strings, including the " -> target" symlink suffix.
type unixParser struct{}

func (unixParser) Parse(line string) (*ListEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return nil, false
	}
	perms := fields[0]

	isSymbolic := len(perms) >= 1 && strings.ContainsRune("-dlbcps", rune(perms[0]))
	isNumeric := len(perms) >= 3 && len(perms) <= 4
	for _, ch := range perms {
		if ch < '0' || ch > '7' {
			isNumeric = false
			break
		}
	}
	if !isSymbolic && !isNumeric {
		return nil, false
	}

	e := &ListEntry{Type: EntryFile}
	isLink := false
	if isSymbolic {
		switch perms[0] {
		case 'd':
			e.Type = EntryDir
		case 'l':
			isLink = true
		}
		if mode, _, err := ParseUnixPermString(perms); err == nil {
			e.UnixMode, e.HasMode = mode, true
		}
	}

	var sizeIdx, nameStartIdx int
	switch {
	case len(fields) >= 9:
		if _, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			sizeIdx, nameStartIdx = 4, 8
			break
		}
		fallthrough
	case len(fields) >= 8:
		if _, err := strconv.ParseInt(fields[3], 10, 64); err != nil {
			return nil, false
		}
		sizeIdx, nameStartIdx = 3, 7
	default:
		return nil, false
	}

	size, err := strconv.ParseInt(fields[sizeIdx], 10, 64)
	if err != nil {
		return nil, false
	}
	e.Size = size

	fullName := strings.Join(fields[nameStartIdx:], " ")
	if isLink {
		if before, after, ok := strings.Cut(fullName, " -> "); ok {
			e.Name, e.Target = before, after
		} else {
			e.Name = fullName
		}
	} else {
		e.Name = fullName
	}
	return e, true
}

// eplfParser parses Easily Parsed LIST Format lines: "+facts\tname".
type eplfParser struct{}

func (eplfParser) Parse(line string) (*ListEntry, bool) {
	if !strings.HasPrefix(line, "+") {
		return nil, false
	}
	body := line[1:]
	idx := strings.IndexAny(body, "\t ")
	if idx == -1 {
		return nil, false
	}
	facts, name := body[:idx], strings.TrimSpace(body[idx+1:])
	if name == "" {
		return nil, false
	}
	e := &ListEntry{Name: name, Type: EntryFile}
	for _, fact := range strings.Split(facts, ",") {
		if fact == "" {
			continue
		}
		switch fact[0] {
		case '/':
			e.Type = EntryDir
		case 's':
			if n, err := strconv.ParseInt(fact[1:], 10, 64); err == nil {
				e.Size = n
			}
		}
	}
	return e, true
}

// dosParser parses DOS/Windows LIST lines: "MM-DD-YY HH:MMAM size name".
type dosParser struct{}

func (dosParser) Parse(line string) (*ListEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !isDOSDate(fields[0]) {
		return nil, false
	}
	e := &ListEntry{Type: EntryFile}
	if fields[2] == "<DIR>" {
		e.Type = EntryDir
		e.Name = strings.Join(fields[3:], " ")
		return e, true
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, false
	}
	e.Size = size
	e.Name = strings.Join(fields[3:], " ")
	return e, true
}

func isDOSDate(s string) bool {
	var parts []string
	switch {
	case strings.Contains(s, "-"):
		parts = strings.Split(s, "-")
	case strings.Contains(s, "/"):
		parts = strings.Split(s, "/")
	default:
		return false
	}
	if len(parts) != 3 {
		return false
	}
	for i, part := range parts {
		if len(part) < 1 || len(part) > 4 {
			return false
		}
		if i == 2 && len(part) != 2 && len(part) != 4 {
			return false
		}
		if i < 2 && len(part) > 2 {
			return false
		}
		for _, ch := range part {
			if ch < '0' || ch > '9' {
				return false
			}
		}
	}
	return true
}
