// SPDX-License-Identifier: GPL-3.0-or-later

package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secnot/leaky-diode/client"
	"github.com/secnot/leaky-diode/diodenet"
	"github.com/secnot/leaky-diode/diodesim"
	"github.com/secnot/leaky-diode/server"
	"github.com/secnot/leaky-diode/wire"
)

// TestExtractFlowModulation runs a full flow-modulation extraction
// over in-memory pipes. The pipe is synchronous, so the client's
// write rate tracks the server's paced reads exactly and the test is
// deterministic despite the timing channel.
func TestExtractFlowModulation(t *testing.T) {
	if testing.Short() {
		t.Skip("skip this test in short mode")
	}

	srv, err := server.New(&server.Config{
		Address: "127.0.0.1:0", // never started; ServeConn is driven directly
		Secret:  []byte("ok"),
	})
	require.NoError(t, err)

	scenario := diodesim.NewScenario(srv.ServeConn)
	defer scenario.Close()

	c, err := client.New(client.Config{
		Address:    "10.0.0.1:4000",
		Mode:       wire.FlowModulation,
		Low:        5000,
		High:       100000,
		SettleTime: 100 * time.Millisecond,
		SampleTime: 100 * time.Millisecond,
		Network:    &diodenet.Network{DialContextFunc: scenario.DialContext},
	})
	require.NoError(t, err)

	c.Start()
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	secret, err := c.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), secret)

	full, complete := c.SecretNow()
	assert.True(t, complete)
	assert.Equal(t, []byte("ok"), full)
}

// TestExtractCloseDelay runs a full close-delay extraction over
// in-memory pipes, one pipe per bit request.
func TestExtractCloseDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skip this test in short mode")
	}

	srv, err := server.New(&server.Config{
		Address: "127.0.0.1:0",
		Secret:  []byte("ok"),
	})
	require.NoError(t, err)

	scenario := diodesim.NewScenario(srv.ServeConn)
	defer scenario.Close()

	c, err := client.New(client.Config{
		Address: "10.0.0.1:4000",
		Mode:    wire.CloseDelay,
		Low:     50,
		High:    400,
		Network: &diodenet.Network{DialContextFunc: scenario.DialContext},
	})
	require.NoError(t, err)

	c.Start()
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	secret, err := c.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), secret)
}
