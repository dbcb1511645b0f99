// SPDX-License-Identifier: GPL-3.0-or-later

// Package ratectl implements the discrete-time token refill that
// paces how often a connection handler may read from its socket.
//
// A capped unit counter starts empty and a private timer goroutine
// adds one unit every 1/ticks seconds, dropping units once the
// counter is saturated. A handler acquires one unit before each
// read attempt, which bounds read attempts to ticks per second; the
// per-read byte ceiling (rate/ticks) is the caller's concern.
package ratectl

import (
	"sync"
	"time"
)

// Controller is a tick-driven unit counter owned by exactly one
// connection handler. Construct using [New]; call [Controller.Close]
// to stop the timer goroutine.
type Controller struct {
	// closeOnce ensures Close is idempotent.
	closeOnce sync.Once

	// stop signals the timer goroutine to exit.
	stop chan struct{}

	// ticks is the number of refills per second.
	ticks int

	// units holds the available read permissions. Its capacity is
	// the counter ceiling.
	units chan struct{}
}

// New creates a [*Controller] with the given refills per second and
// starts its timer goroutine.
func New(ticksPerSecond int) *Controller {
	c := &Controller{
		closeOnce: sync.Once{},
		stop:      make(chan struct{}),
		ticks:     ticksPerSecond,
		units:     make(chan struct{}, ticksPerSecond),
	}
	go c.refill()
	return c
}

// refill adds one unit per tick until the controller is closed.
func (c *Controller) refill() {
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick adds one unit, silently dropping it at saturation.
func (c *Controller) tick() {
	select {
	case c.units <- struct{}{}:
	default:
	}
}

// Interval returns the tick period.
func (c *Controller) Interval() time.Duration {
	return time.Second / time.Duration(c.ticks)
}

// Ticks returns the refills per second.
func (c *Controller) Ticks() int {
	return c.ticks
}

// Acquire blocks until one unit is available and consumes it,
// returning true. Returns false when cancel is closed or the
// controller is closed, whichever happens first.
func (c *Controller) Acquire(cancel <-chan struct{}) bool {
	select {
	case <-c.units:
		return true
	case <-cancel:
		return false
	case <-c.stop:
		return false
	}
}

// Drain discards all pending units so the next reads reflect the
// current rate target rather than a leftover burst.
func (c *Controller) Drain() {
	for {
		select {
		case <-c.units:
		default:
			return
		}
	}
}

// Close stops the timer goroutine. Idempotent.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}
