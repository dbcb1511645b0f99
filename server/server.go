// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/secnot/leaky-diode/diodenet"
	"github.com/secnot/leaky-diode/ratectl"
)

const (
	// DefaultTicksPerSecond is the default rate-controller tick
	// frequency.
	DefaultTicksPerSecond = 100

	// DefaultMaxConnections is the default cap on concurrent
	// connection handlers.
	DefaultMaxConnections = 10

	// DefaultAcceptTokens is the default number of connections a
	// single source address may open per accept interval.
	DefaultAcceptTokens = 30

	// DefaultAcceptInterval is the default per-source accept
	// limiting interval.
	DefaultAcceptInterval = time.Minute

	// listenRecvBuffer is the receive buffer requested for the
	// listening socket.
	listenRecvBuffer = 200 * 1024
)

// Config configures a [*Server].
type Config struct {
	// Address is the mandatory listen endpoint (host:port).
	Address string

	// Secret is the mandatory byte string to leak.
	Secret []byte

	// TicksPerSecond is the optional rate-controller tick frequency
	// (default [DefaultTicksPerSecond]).
	TicksPerSecond int

	// MaxConnections is the optional cap on concurrent connection
	// handlers (default [DefaultMaxConnections]).
	MaxConnections int

	// AcceptTokens is the optional number of connections one source
	// address may open per AcceptInterval (default
	// [DefaultAcceptTokens]).
	AcceptTokens uint64

	// AcceptInterval is the optional per-source accept limiting
	// interval (default [DefaultAcceptInterval]).
	AcceptInterval time.Duration

	// Logger optionally emits structured diagnostic events. If nil,
	// logs are discarded.
	Logger *slog.Logger

	// TimeNow optionally replaces [time.Now] as the clock.
	TimeNow func() time.Time
}

// Server leaks its secret through covert timing channels.
//
// Construct using [New], then call [Server.Start] and, when done,
// [Server.Stop].
type Server struct {
	address  string
	limiter  limiter.Store
	listener net.Listener
	logger   *slog.Logger
	maxConns int
	secret   []byte
	stop     chan struct{}
	stopOnce sync.Once
	ticks    int
	timeNow  func() time.Time
	wg       sync.WaitGroup

	// mu protects conns.
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New creates a [*Server] with the given configuration.
func New(config *Config) (*Server, error) {
	if config.Address == "" {
		return nil, errors.New("server: missing listen address")
	}
	if len(config.Secret) <= 0 {
		return nil, errors.New("server: missing secret")
	}

	ticks := config.TicksPerSecond
	if ticks <= 0 {
		ticks = DefaultTicksPerSecond
	}
	maxConns := config.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	tokens := config.AcceptTokens
	if tokens <= 0 {
		tokens = DefaultAcceptTokens
	}
	interval := config.AcceptInterval
	if interval <= 0 {
		interval = DefaultAcceptInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeNow := config.TimeNow
	if timeNow == nil {
		timeNow = time.Now
	}

	store, err := memorystore.New(&memorystore.Config{
		Tokens:   tokens,
		Interval: interval,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		address:  config.Address,
		limiter:  store,
		listener: nil,
		logger:   logger,
		maxConns: maxConns,
		secret:   append([]byte{}, config.Secret...),
		stop:     make(chan struct{}),
		stopOnce: sync.Once{},
		ticks:    ticks,
		timeNow:  timeNow,
		wg:       sync.WaitGroup{},
		mu:       sync.Mutex{},
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Start opens the listening socket and begins accepting
// connections in the background.
func (s *Server) Start() error {
	lc := &net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", s.address)
	if err != nil {
		return err
	}
	if tcp, ok := listener.(*net.TCPListener); ok {
		// Best effort: a roomy listen buffer keeps the accept
		// queue from interfering with per-connection pacing.
		if err := diodenet.SetRecvBuffer(tcp, listenRecvBuffer); err != nil {
			s.logger.Warn("setRecvBufferFailed", slog.Any("err", err))
		}
	}
	s.listener = listener

	s.logger.Info("serverStarted",
		slog.String("address", listener.Addr().String()),
		slog.Int("ticksPerSecond", s.ticks),
		slog.Int("maxConnections", s.maxConns),
	)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections until shutdown, keeping at most
// maxConns handlers running.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	slots := make(chan struct{}, s.maxConns)
	for {
		select {
		case <-s.stop:
			return
		case slots <- struct{}{}:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			<-slots
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("acceptFailed", slog.Any("err", err))
			continue
		}

		if !s.admit(conn) {
			conn.Close()
			<-slots
			continue
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-slots }()
			defer s.untrackConn(conn)
			s.ServeConn(conn)
		}()
	}
}

// admit applies the per-source accept limit.
func (s *Server) admit(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	_, _, _, ok, err := s.limiter.Take(context.Background(), host)
	if err != nil || !ok {
		s.logger.Warn("connThrottled",
			slog.String("remoteAddr", conn.RemoteAddr().String()),
			slog.Any("err", err),
		)
		return false
	}
	return true
}

// trackConn records a connection so Stop can close it.
func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

// untrackConn removes a connection from the tracked set.
func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// signalShutdown makes the accept loop and every handler wind
// down. Used by Stop and by the close-delay Exit contract.
func (s *Server) signalShutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

// Done returns a channel closed when the server begins shutting
// down, either through [Server.Stop] or through a client-requested
// cooperative shutdown.
func (s *Server) Done() <-chan struct{} {
	return s.stop
}

// Stop shuts the server down: no more connections are accepted,
// all handlers are signaled and their connections closed, and Stop
// waits for them to exit. Idempotent.
func (s *Server) Stop() error {
	s.signalShutdown()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	err := s.limiter.Close(context.Background())
	s.logger.Info("serverStopped")
	return err
}

// ServeConn handles a single client connection until it
// terminates. Normally called by the accept loop; test harnesses
// call it directly with an in-memory connection.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	if err := diodenet.Tune(conn); err != nil {
		s.logger.Warn("tuneFailed", slog.Any("err", err))
	}

	ctrl := ratectl.New(s.ticks)
	defer ctrl.Close()

	st := newConnState(s, conn, ctrl)
	st.run()
}
