// SPDX-License-Identifier: GPL-3.0-or-later

// Command leaky-client extracts a secret from a leaky-diode server
// through one of the covert timing channels.
//
// In flow mode the server signals each bit by throttling how fast it
// reads; in close mode by how long it waits before closing the
// connection. Flow mode uses one long-lived connection, close mode
// one short connection per bit.
//
// # Usage
//
//	go run ./cmd/leaky-client -server 127.0.0.1:4000 -mode flow
//	go run ./cmd/leaky-client -server 127.0.0.1:4000 -mode close -low 50 -high 400
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secnot/leaky-diode/client"
	"github.com/secnot/leaky-diode/wire"
)

func main() {
	var (
		address = flag.String("server", "", "server address (host:port)")
		mode    = flag.String("mode", "flow", "attack mode: flow or close")
		low     = flag.Uint("low", 10000, "low signal (bytes/s for flow, ms for close)")
		high    = flag.Uint("high", 100000, "high signal (bytes/s for flow, ms for close)")
		settle  = flag.Float64("settle", 10.0, "flow mode settle seconds per bit")
		sample  = flag.Float64("sample", 4.0, "flow mode sample seconds per bit")
		verbose = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "Error: -server is required")
		os.Exit(1)
	}
	var attackMode wire.AttackMode
	switch *mode {
	case "flow":
		attackMode = wire.FlowModulation
	case "close":
		attackMode = wire.CloseDelay
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q (want flow or close)\n", *mode)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	c, err := client.New(client.Config{
		Address:    *address,
		Mode:       attackMode,
		Low:        uint32(*low),
		High:       uint32(*high),
		SettleTime: time.Duration(*settle * float64(time.Second)),
		SampleTime: time.Duration(*sample * float64(time.Second)),
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.Start()
	secret, err := c.Secret(ctx)
	c.Stop()

	if len(secret) > 0 {
		fmt.Printf("secret: %q\n", secret)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "interrupted: secret may be partial")
	}
}
