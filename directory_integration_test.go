package ftp

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

// acceptAndWrite accepts one connection off ln and writes body to it, then
// closes it. Used as a fake passive-mode data connection.
func acceptAndWrite(t *testing.T, ln net.Listener, body string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("data Accept failed: %v", err)
		return
	}
	defer conn.Close()
	conn.Write([]byte(body))
}

func TestContentsOfDirectoryMLSD(t *testing.T) {
	t.Parallel()

	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("data listen: %v", err)
	}
	defer dataLn.Close()
	_, dataPort := splitHostPort(t, dataLn.Addr().String())

	ctrlLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("control listen: %v", err)
	}
	defer ctrlLn.Close()

	body := "type=file;size=10; a.txt\r\ntype=dir; sub\r\n"
	dataDone := make(chan struct{})
	go func() {
		defer close(dataDone)
		acceptAndWrite(t, dataLn, body)
	}()

	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		conn, err := ctrlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)

		conn.Write([]byte("220 Welcome\r\n"))
		br.ReadString('\n') // FEAT
		conn.Write([]byte("500 Unsupported\r\n"))

		expectLine(t, br, "EPSV")
		conn.Write([]byte("229 Entering Extended Passive Mode (|||" + strconv.Itoa(dataPort) + "|)\r\n"))

		expectLine(t, br, "MLSD .")
		conn.Write([]byte("150 Here comes the listing\r\n"))

		<-dataDone
		conn.Write([]byte("226 Transfer complete\r\n"))

		expectLine(t, br, "QUIT")
		conn.Write([]byte("221 Bye\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, port := splitHostPort(t, ctrlLn.Addr().String())
	s, err := Open(ctx, host, port, WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.useMLSD = true
	defer s.Close()

	head, err := s.ContentsOfDirectory(ctx, ".")
	if err != nil {
		t.Fatalf("ContentsOfDirectory failed: %v", err)
	}
	var names []string
	for e := head; e != nil; e = e.Next {
		names = append(names, e.Name)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "sub" {
		t.Errorf("got %v", names)
	}

	select {
	case <-ctrlDone:
	case <-time.After(2 * time.Second):
		t.Fatal("control server goroutine did not finish")
	}
}

func TestNameList(t *testing.T) {
	t.Parallel()

	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("data listen: %v", err)
	}
	defer dataLn.Close()
	_, dataPort := splitHostPort(t, dataLn.Addr().String())

	ctrlLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("control listen: %v", err)
	}
	defer ctrlLn.Close()

	dataDone := make(chan struct{})
	go func() {
		defer close(dataDone)
		acceptAndWrite(t, dataLn, "a.txt\r\nb.txt\r\n")
	}()

	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		conn, err := ctrlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)

		conn.Write([]byte("220 Welcome\r\n"))
		br.ReadString('\n') // FEAT
		conn.Write([]byte("500 Unsupported\r\n"))

		expectLine(t, br, "EPSV")
		conn.Write([]byte("229 Entering Extended Passive Mode (|||" + strconv.Itoa(dataPort) + "|)\r\n"))

		expectLine(t, br, "NLST .")
		conn.Write([]byte("150 Here comes the listing\r\n"))

		<-dataDone
		conn.Write([]byte("226 Transfer complete\r\n"))

		expectLine(t, br, "QUIT")
		conn.Write([]byte("221 Bye\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, port := splitHostPort(t, ctrlLn.Addr().String())
	s, err := Open(ctx, host, port, WithDisableMLSD(), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	names, err := s.NameList(ctx, ".")
	if err != nil {
		t.Fatalf("NameList failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Errorf("got %v", names)
	}

	select {
	case <-ctrlDone:
	case <-time.After(2 * time.Second):
		t.Fatal("control server goroutine did not finish")
	}
}

// TestContentsOfDirectoryFallsBackToLIST exercises the MLSD-5xx-then-LIST
// downgrade path: the server rejects MLSD outright, so ContentsOfDirectory
// must reopen a fresh passive data connection and retry with LIST, then
// remember not to try MLSD again.
func TestContentsOfDirectoryFallsBackToLIST(t *testing.T) {
	t.Parallel()

	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("data listen: %v", err)
	}
	defer dataLn.Close()
	_, dataPort := splitHostPort(t, dataLn.Addr().String())

	ctrlLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("control listen: %v", err)
	}
	defer ctrlLn.Close()

	listBody := "-rw-r--r-- 1 owner group 10 Jan 1 00:00 a.txt\r\n"
	dataDone := make(chan struct{})
	go func() {
		defer close(dataDone)
		// The first passive data connection belongs to the rejected MLSD
		// attempt: the client aborts it without reading, so just close it.
		if first, err := dataLn.Accept(); err == nil {
			first.Close()
		}
		acceptAndWrite(t, dataLn, listBody)
	}()

	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		conn, err := ctrlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)

		conn.Write([]byte("220 Welcome\r\n"))
		br.ReadString('\n') // FEAT
		conn.Write([]byte("500 Unsupported\r\n"))

		// First attempt: EPSV + MLSD, rejected outright.
		expectLine(t, br, "EPSV")
		conn.Write([]byte("229 Entering Extended Passive Mode (|||" + strconv.Itoa(dataPort) + "|)\r\n"))
		expectLine(t, br, "MLSD .")
		conn.Write([]byte("500 MLSD not understood\r\n"))

		// Fallback attempt: a fresh EPSV + LIST.
		expectLine(t, br, "EPSV")
		conn.Write([]byte("229 Entering Extended Passive Mode (|||" + strconv.Itoa(dataPort) + "|)\r\n"))
		expectLine(t, br, "LIST .")
		conn.Write([]byte("150 Here comes the listing\r\n"))

		<-dataDone
		conn.Write([]byte("226 Transfer complete\r\n"))

		expectLine(t, br, "QUIT")
		conn.Write([]byte("221 Bye\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, port := splitHostPort(t, ctrlLn.Addr().String())
	s, err := Open(ctx, host, port, WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.useMLSD = true
	defer s.Close()

	head, err := s.ContentsOfDirectory(ctx, ".")
	if err != nil {
		t.Fatalf("ContentsOfDirectory failed: %v", err)
	}
	if head == nil || head.Name != "a.txt" {
		t.Errorf("got %+v", head)
	}
	if s.useMLSD {
		t.Error("expected useMLSD to be downgraded after a 5xx MLSD reply")
	}

	select {
	case <-ctrlDone:
	case <-time.After(2 * time.Second):
		t.Fatal("control server goroutine did not finish")
	}
}
