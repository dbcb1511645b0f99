// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import (
	"context"
	"errors"
	"net"
)

// DialContext establishes a new connection to the given endpoint.
//
// When the endpoint host is a domain name it is resolved first and
// each resulting endpoint is attempted in sequence. Connections
// created through the default dialer are tuned with [Tune] so the
// covert signal is not absorbed by kernel buffering.
func (nx *Network) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	endpoints, err := nx.lookupEndpoint(ctx, address)
	if err != nil {
		return nil, err
	}

	var errv []error
	for _, endpoint := range endpoints {
		conn, err := nx.dialNet(ctx, network, endpoint)
		if conn != nil && err == nil {
			return nx.maybeWrapConn(ctx, conn), nil
		}
		errv = append(errv, err)
	}
	return nil, errors.Join(errv...)
}

// lookupEndpoint resolves the domain inside an endpoint to a list
// of host:port endpoints, short circuiting when the host already is
// an IP address.
func (nx *Network) lookupEndpoint(ctx context.Context, endpoint string) ([]string, error) {
	domain, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(domain) != nil {
		return []string{endpoint}, nil
	}

	addrs, err := nx.doLookupHost(ctx, domain)
	if err != nil {
		return nil, err
	}
	var endpoints []string
	for _, addr := range addrs {
		endpoints = append(endpoints, net.JoinHostPort(addr, port))
	}
	return endpoints, nil
}

// doLookupHost resolves a domain name to IP addresses.
func (nx *Network) doLookupHost(ctx context.Context, domain string) ([]string, error) {
	if nx.LookupHostFunc != nil {
		return nx.LookupHostFunc(ctx, domain)
	}
	reso := &net.Resolver{}
	return reso.LookupHost(ctx, domain)
}

// dialNet creates a single connection.
func (nx *Network) dialNet(ctx context.Context, network, address string) (net.Conn, error) {
	if nx.DialContextFunc != nil {
		return nx.DialContextFunc(ctx, network, address)
	}

	child := &net.Dialer{}
	child.SetMultipathTCP(false)
	conn, err := child.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if err := Tune(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// maybeWrapConn wraps a connection when a wrapper and logger are
// both configured.
func (nx *Network) maybeWrapConn(ctx context.Context, conn net.Conn) net.Conn {
	if conn != nil && nx.Logger != nil && nx.WrapConn != nil {
		conn = nx.WrapConn(ctx, nx, conn)
	}
	return conn
}
