//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import "golang.org/x/sys/unix"

// setsockoptRcvbuf sets SO_RCVBUF on Unix-like systems.
func setsockoptRcvbuf(fd uintptr, size int) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}
