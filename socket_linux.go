//go:build linux

package ftp

import (
	"syscall"
	"time"
)

// setsockoptTimeout sets SO_RCVTIMEO on fd to timeout.
func setsockoptTimeout(fd int, timeout time.Duration) error {
	tv := syscall.NsecToTimeval(timeout.Nanoseconds())
	return syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv)
}
