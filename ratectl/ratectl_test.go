// SPDX-License-Identifier: GPL-3.0-or-later

package ratectl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// available counts the units currently acquirable without blocking.
func available(c *Controller) int {
	count := 0
	for {
		select {
		case <-c.units:
			count++
		default:
			return count
		}
	}
}

func TestControllerSaturation(t *testing.T) {
	c := New(10)
	defer c.Close()

	// Many more increments than the ceiling must not overflow
	// and must not block the producer side.
	for i := 0; i < 10*3; i++ {
		c.tick()
	}
	assert.Equal(t, 10, available(c))
}

func TestControllerAcquire(t *testing.T) {
	t.Run("acquire consumes one unit", func(t *testing.T) {
		c := New(10)
		defer c.Close()
		cancel := make(chan struct{})

		c.tick()
		c.tick()
		assert.True(t, c.Acquire(cancel))
		assert.Equal(t, 1, available(c))
	})

	t.Run("acquire honors cancellation", func(t *testing.T) {
		c := New(1) // no unit arrives within the test
		defer c.Close()

		cancel := make(chan struct{})
		close(cancel)
		assert.False(t, c.Acquire(cancel))
	})

	t.Run("acquire unblocks on close", func(t *testing.T) {
		c := New(1)
		cancel := make(chan struct{})

		done := make(chan bool, 1)
		go func() { done <- c.Acquire(cancel) }()
		c.Close()

		select {
		case got := <-done:
			assert.False(t, got)
		case <-time.After(time.Second):
			t.Fatal("Acquire did not unblock on Close")
		}
	})
}

func TestControllerDrain(t *testing.T) {
	c := New(10)
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.tick()
	}
	c.Drain()
	assert.Equal(t, 0, available(c))
}

func TestControllerRefill(t *testing.T) {
	c := New(100)
	defer c.Close()

	cancel := make(chan struct{})
	start := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, c.Acquire(cancel))
	}
	// Five units at 100 ticks/s should take roughly 50ms.
	assert.Less(t, time.Since(start), time.Second)
}

func TestControllerInterval(t *testing.T) {
	c := New(100)
	defer c.Close()
	assert.Equal(t, 10*time.Millisecond, c.Interval())
	assert.Equal(t, 100, c.Ticks())
}

func TestControllerCloseIdempotent(t *testing.T) {
	c := New(10)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
