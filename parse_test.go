package ftp

import (
	"testing"
	"time"
)

func TestExtractParenthesized(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		line    string
		maxlen  int
		want    string
		wantErr bool
	}{
		{"standard", "227 Entering Passive Mode (192,168,1,1,195,149)", 0, "192,168,1,1,195,149", false},
		{"no parens", "227 Invalid response", 0, "", true},
		{"empty payload", "227 ()", 0, "", true},
		{"too long", "227 (123456789)", 5, "", true},
		{"unbalanced", "227 (abc", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractParenthesized(tt.line, tt.maxlen)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePASV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload string
		wantIP  [4]byte
		wantPrt int
		wantErr bool
	}{
		{"standard", "192,168,1,1,195,149", [4]byte{192, 168, 1, 1}, 256*195 + 149, false},
		{"zero host", "0,0,0,0,195,149", [4]byte{0, 0, 0, 0}, 256*195 + 149, false},
		{"too few fields", "192,168,1,1", [4]byte{}, 0, true},
		{"out of range", "300,168,1,1,195,149", [4]byte{}, 0, true},
		{"non numeric", "a,168,1,1,195,149", [4]byte{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParsePASV(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if addr.IP != tt.wantIP || addr.Port != tt.wantPrt {
				t.Errorf("got %+v, want IP=%v Port=%d", addr, tt.wantIP, tt.wantPrt)
			}
		})
	}
}

func TestParseEPSV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		payload  string
		wantPort int
		wantErr  bool
	}{
		{"standard", "|||6446|", 6446, false},
		{"no trailing delimiter", "|||12345", 12345, false},
		{"empty", "", 0, true},
		{"too few delimiters", "||6446|", 0, true},
		{"bad port", "|||notaport|", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, err := ParseEPSV(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && port != tt.wantPort {
				t.Errorf("got %d, want %d", port, tt.wantPort)
			}
		})
	}
}

func TestParsePWDPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr bool
	}{
		{"standard", `257 "/home/user" is the current directory`, "/home/user", false},
		{"root", `257 "/"`, "/", false},
		{"extra quotes ignored", `257 "/a" "/b"`, "/a", false},
		{"no quote", "257 no quotes here", "", true},
		{"unterminated", `257 "/home/user`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePWDPath(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMLSDLine(t *testing.T) {
	t.Parallel()
	t.Run("file with size and modify", func(t *testing.T) {
		facts, name, err := ParseMLSDLine("size=1234;modify=20201231235959;type=file; report.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "report.txt" {
			t.Errorf("name = %q", name)
		}
		if !facts.HasSize || facts.Size != 1234 {
			t.Errorf("size = %+v", facts)
		}
		if !facts.HasModify || !facts.Modify.Equal(time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC)) {
			t.Errorf("modify = %v", facts.Modify)
		}
		if facts.Type != EntryFile {
			t.Errorf("type = %v, want EntryFile", facts.Type)
		}
	})

	t.Run("directory via cdir", func(t *testing.T) {
		facts, name, err := ParseMLSDLine("type=cdir;perm=el; .")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "." {
			t.Errorf("name = %q", name)
		}
		if facts.Type != EntryDir {
			t.Errorf("type = %v, want EntryDir", facts.Type)
		}
	})

	t.Run("unix.mode and unix.group", func(t *testing.T) {
		facts, _, err := ParseMLSDLine("unix.mode=0755;unix.group=100; bin")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !facts.HasMode || facts.UnixMode != 755 {
			t.Errorf("mode = %+v", facts)
		}
		if !facts.HasGroup || facts.UnixGroup != 100 {
			t.Errorf("group = %+v", facts)
		}
	})

	t.Run("fractional modify time", func(t *testing.T) {
		facts, _, err := ParseMLSDLine("modify=20201231235959.123; f")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !facts.HasModify {
			t.Errorf("expected HasModify")
		}
	})

	t.Run("unknown fact ignored", func(t *testing.T) {
		facts, name, err := ParseMLSDLine("x-custom=whatever;size=5; f")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "f" || facts.Size != 5 {
			t.Errorf("got %+v %q", facts, name)
		}
	})

	t.Run("no separator", func(t *testing.T) {
		_, _, err := ParseMLSDLine("size=5;")
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("malformed fact", func(t *testing.T) {
		_, _, err := ParseMLSDLine("size; f")
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty filename", func(t *testing.T) {
		_, _, err := ParseMLSDLine("size=5; ")
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSplitReplyLines(t *testing.T) {
	t.Parallel()
	t.Run("CRLF", func(t *testing.T) {
		lines, sawBareLF := splitReplyLines([]byte("a\r\nb\r\n"))
		if sawBareLF {
			t.Error("sawBareLF should be false")
		}
		if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
			t.Errorf("got %v", lines)
		}
	})

	t.Run("bare LF tolerated", func(t *testing.T) {
		lines, sawBareLF := splitReplyLines([]byte("a\nb\r\n"))
		if !sawBareLF {
			t.Error("sawBareLF should be true")
		}
		if len(lines) != 2 {
			t.Errorf("got %v", lines)
		}
	})

	t.Run("no trailing terminator", func(t *testing.T) {
		lines, _ := splitReplyLines([]byte("a\r\nb"))
		if len(lines) != 2 || lines[1] != "b" {
			t.Errorf("got %v", lines)
		}
	})

	t.Run("empty", func(t *testing.T) {
		lines, _ := splitReplyLines(nil)
		if len(lines) != 0 {
			t.Errorf("got %v", lines)
		}
	})
}

func TestParseUnixPermString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		perm      string
		wantMode  int
		wantIsDir bool
		wantErr   bool
	}{
		{"directory full perms", "drwxr-xr-x", 755, true, false},
		{"regular file", "-rw-r--r--", 644, false, false},
		{"setuid still executable bit", "-rwsr-xr-x", 755, false, false},
		{"sticky bit no execute", "-rwxr-xr-T", 754, false, false},
		{"too short", "drwx", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, isDir, err := ParseUnixPermString(tt.perm)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if mode != tt.wantMode {
				t.Errorf("mode = %d, want %d", mode, tt.wantMode)
			}
			if isDir != tt.wantIsDir {
				t.Errorf("isDir = %v, want %v", isDir, tt.wantIsDir)
			}
		})
	}
}
