// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconstructBits(t *testing.T) {
	tests := []struct {
		name   string
		bits   []bool
		expect int
	}{
		{
			name:   "empty",
			bits:   nil,
			expect: 0,
		},
		{
			name:   "least significant bit first",
			bits:   []bool{true, false, false, false, false, false, false, false},
			expect: 1,
		},
		{
			name:   "all zeros",
			bits:   []bool{false, false, false, false, false, false, false, false},
			expect: 0,
		},
		{
			name:   "all ones",
			bits:   []bool{true, true, true, true, true, true, true, true},
			expect: 255,
		},
		{
			name: "sixteen bit length",
			bits: []bool{
				false, true, false, false, false, false, false, false,
				false, false, false, false, false, false, false, true,
			},
			expect: 2 | 1<<15,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, reconstructBits(tc.bits))
		})
	}
}
