//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import "golang.org/x/sys/windows"

// setsockoptRcvbuf sets SO_RCVBUF on Windows.
func setsockoptRcvbuf(fd uintptr, size int) error {
	return windows.SetsockoptInt(
		windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, size)
}
