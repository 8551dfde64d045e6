// Package ftp implements an FTP client engine built around a background
// control-channel reader: every command arms the reply codes it expects,
// writes itself to the wire, and blocks until a goroutine reading the
// control socket reports a match or an error.
//
// # Overview
//
// This package supports:
//   - Plain FTP, explicit TLS (AUTH TLS), and implicit TLS
//   - Automatic TLS session reuse between the control and data channels
//   - Passive-mode data transfers (EPSV, falling back to PASV)
//   - MLSD directory listings (falling back to LIST when unsupported)
//   - Concurrent transfers via a pool of sibling control connections
//   - Progress tracking and transfer rate limiting
//
// Active mode (PORT/EPRT) and running as a server are out of scope.
//
// # Basic usage
//
//	sess, err := ftp.Open(ctx, "ftp.example.com", 21)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if err := sess.Auth(ctx, "user", "pass"); err != nil {
//	    log.Fatal(err)
//	}
//
// # TLS
//
//	sess, err := ftp.Open(ctx, "ftp.example.com", 21,
//	    ftp.WithExplicitTLS(&tls.Config{ServerName: "ftp.example.com"}),
//	)
//
// # Transfers
//
//	f, err := ftp.Fopen(ctx, sess, nil, "remote.txt", ftp.ModeRetrieve)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := io.Copy(localFile, f); err != nil {
//	    log.Fatal(err)
//	}
//	if err := f.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
// Passing a non-nil *Pool as the second argument borrows a sibling
// connection so multiple transfers can run concurrently against the same
// server.
//
// # Errors
//
// Every exported operation that talks to the control channel returns an
// *Error carrying an ErrKind a caller can branch on; remote 4xx/5xx replies
// are additionally wrapped in a *ProtocolError reachable via errors.As.
// File.Read and File.Write pass data-connection errors through unwrapped,
// including io.EOF at the end of a download.
package ftp
