// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package diodesim simulates a leaky-diode deployment in memory.

A [*Scenario] hands every dialed connection to a user-provided
handler over an in-memory pipe, so client and server exercise the
real protocol end to end without sockets. The pipe is synchronous:
the client's achieved write rate equals the rate at which the
handler reads, which makes throughput-based tests deterministic.
*/
package diodesim

import (
	"context"
	"net"
	"sync"
)

// Scenario connects each dialed connection to a server handler
// through an in-memory pipe.
type Scenario struct {
	// Handler serves the server end of each dialed connection. It
	// runs in its own goroutine and owns the given conn.
	Handler func(conn net.Conn)

	// conns tracks both pipe ends for teardown.
	conns []net.Conn

	// mu protects conns.
	mu sync.Mutex

	// wg tracks running handlers.
	wg sync.WaitGroup
}

// NewScenario creates a scenario serving dials with the handler.
func NewScenario(handler func(conn net.Conn)) *Scenario {
	return &Scenario{Handler: handler}
}

// DialContext creates a connection served by the scenario handler.
// The network and address arguments only exist to satisfy the
// dialing function signature and are otherwise ignored.
func (s *Scenario) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	s.mu.Lock()
	s.conns = append(s.conns, client, server)
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Handler(server)
	}()
	return client, nil
}

// Close tears down every connection and waits for the handlers to
// return.
func (s *Scenario) Close() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
	return nil
}
