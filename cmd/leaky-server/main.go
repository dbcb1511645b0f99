// SPDX-License-Identifier: GPL-3.0-or-later

// Command leaky-server runs the compromised side of the toolkit: a
// TCP service that leaks its secret to clients through covert timing
// channels while the payload traffic itself stays meaningless.
//
// # Usage
//
//	go run ./cmd/leaky-server -listen 127.0.0.1:4000 -secret hunter2
//
// The server runs until interrupted, or until a close-delay client
// requests a cooperative shutdown.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/secnot/leaky-diode/server"
)

func main() {
	var (
		listen   = flag.String("listen", "127.0.0.1:4000", "listen address (host:port)")
		secret   = flag.String("secret", "", "secret string to leak")
		ticks    = flag.Int("ticks", server.DefaultTicksPerSecond, "rate controller ticks per second")
		maxConns = flag.Int("max-conns", server.DefaultMaxConnections, "max concurrent connections")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: -secret is required")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	srv, err := server.New(&server.Config{
		Address:        *listen,
		Secret:         []byte(*secret),
		TicksPerSecond: *ticks,
		MaxConnections: *maxConns,
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("serverListening", slog.String("address", srv.Addr().String()))

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigch:
	case <-srv.Done():
		// A close-delay client requested shutdown.
	}

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
