//go:build !linux

package ftp

import "time"

// setsockoptTimeout is a no-op outside Linux; SetReadDeadline remains the
// authoritative timeout mechanism on those platforms.
func setsockoptTimeout(fd int, timeout time.Duration) error {
	return nil
}
