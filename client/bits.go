// SPDX-License-Identifier: GPL-3.0-or-later

package client

// reconstructBits folds LSB-first bit samples into an integer:
// sample i sets bit i of the result.
func reconstructBits(bits []bool) int {
	value := 0
	for i, bit := range bits {
		if bit {
			value |= 1 << i
		}
	}
	return value
}
