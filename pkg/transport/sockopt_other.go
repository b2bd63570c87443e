//go:build !unix

package transport

import "syscall"

// udpControl is a no-op where x/sys/unix is unavailable.
func udpControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
