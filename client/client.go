// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/secnot/leaky-diode/diodenet"
	"github.com/secnot/leaky-diode/wire"
)

// ErrExtraction wraps the cause reported by a failed run.
var ErrExtraction = errors.New("client: extraction failed")

// Config configures a [*Client].
//
// The zero value is not valid: Address and Mode must be set. All the
// other fields have working defaults.
type Config struct {
	// Address is the server endpoint ("host:port").
	Address string

	// Mode selects the extraction channel.
	Mode wire.AttackMode

	// Low and High are the physical-signal parameters: bytes/s for
	// flow modulation, milliseconds for close delay. Low must be
	// strictly below High. Defaults: 10000 and 100000.
	Low  uint32
	High uint32

	// SettleTime is the flow-modulation warm-up per bit. Default:
	// 10s. Ignored in close-delay mode.
	SettleTime time.Duration

	// SampleTime is the flow-modulation measurement window per bit.
	// Default: 4s. Ignored in close-delay mode.
	SampleTime time.Duration

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Network is the optional network abstraction, for tests.
	Network *diodenet.Network
}

// Client drives one extraction run against a leaky-diode server.
//
// Construct with [New], start with [Client.Start], and collect the
// secret with [Client.Secret] or [Client.SecretNow]. A Client is
// single use: once the run terminates it never restarts.
type Client struct {
	// done is closed when the engine goroutine returns.
	done chan struct{}

	// engine is the extraction algorithm selected by the mode.
	engine engine

	// events is the stream produced by the engine.
	events chan Event

	// started records that Start ran, so Stop knows whether there
	// is a goroutine to wait for.
	started bool

	// stop signals cooperative cancellation to the engine.
	stop     chan struct{}
	stopOnce sync.Once

	// mu protects the accumulated state below.
	mu sync.Mutex

	// secret holds the bytes recovered so far.
	secret []byte

	// secretLen is the announced length; valid once hasLength.
	secretLen int
	hasLength bool

	// terminal records that a done, error, or exit event arrived.
	terminal bool

	// failed and failure record an error event.
	failed  bool
	failure string
}

// New creates a [*Client] with the given config.
func New(config Config) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("client: no server address")
	}
	if config.Mode != wire.FlowModulation && config.Mode != wire.CloseDelay {
		return nil, fmt.Errorf("client: unknown attack mode: %d", config.Mode)
	}
	if config.Low == 0 {
		config.Low = 10000
	}
	if config.High == 0 {
		config.High = 100000
	}
	if config.Low >= config.High {
		return nil, fmt.Errorf("client: low signal %d not below high %d", config.Low, config.High)
	}
	if config.SettleTime <= 0 {
		config.SettleTime = 10 * time.Second
	}
	if config.SampleTime <= 0 {
		config.SampleTime = 4 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	netx := config.Network
	if netx == nil {
		netx = &diodenet.Network{Logger: logger}
	}

	c := &Client{
		done:   make(chan struct{}),
		events: make(chan Event, eventChannelSize),
		stop:   make(chan struct{}),
	}
	core := engineCore{
		address: config.Address,
		events:  c.events,
		high:    config.High,
		low:     config.Low,
		logger:  logger,
		netx:    netx,
		nop:     wire.RandomNop().Encode(),
		stop:    c.stop,
	}
	switch config.Mode {
	case wire.FlowModulation:
		c.engine = newFlowEngine(core, config.SettleTime, config.SampleTime)
	default:
		c.engine = newCloseDelayEngine(core)
	}
	return c, nil
}

// Start launches the extraction run in a background goroutine.
func (c *Client) Start() {
	if c.started {
		return
	}
	c.started = true
	go func() {
		defer close(c.done)
		c.engine.run()
	}()
}

// Stop requests cooperative cancellation and waits for the engine
// goroutine to return. It is idempotent and safe to call whether or
// not the run already terminated.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started {
		<-c.done
	}
}

// SecretNow drains pending events and returns the bytes recovered so
// far, plus whether the full secret is in hand.
func (c *Client) SecretNow() (secret []byte, complete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	secret = append([]byte(nil), c.secret...)
	complete = c.hasLength && len(c.secret) == c.secretLen
	return secret, complete
}

// Secret waits for the run to terminate and returns the recovered
// secret. If the context expires first it returns whatever was
// recovered so far, with a nil error. A failed run returns the
// partial secret and an error wrapping [ErrExtraction].
func (c *Client) Secret(ctx context.Context) ([]byte, error) {
	if !c.started {
		return nil, errors.New("client: not started")
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	secret := append([]byte(nil), c.secret...)
	if c.failed {
		return secret, fmt.Errorf("%w: %s", ErrExtraction, c.failure)
	}
	return secret, nil
}

// Events exposes the raw event stream for callers that want to
// follow progress themselves. Consuming it directly races with
// [Client.Secret] and [Client.SecretNow]; pick one or the other.
func (c *Client) Events() <-chan Event {
	return c.events
}

// drainLocked folds every pending event into the accumulated state.
// Caller holds mu.
func (c *Client) drainLocked() {
	for {
		select {
		case ev := <-c.events:
			c.applyLocked(ev)
		default:
			return
		}
	}
}

// applyLocked folds one event into the accumulated state. Events
// after the terminal one are ignored.
func (c *Client) applyLocked(ev Event) {
	if c.terminal {
		return
	}
	switch ev.Kind {
	case EventLength:
		c.secretLen = ev.Length
		c.hasLength = true
	case EventSecret:
		c.secret = append(c.secret, ev.Secret)
	case EventDone, EventExit:
		c.terminal = true
	case EventError:
		c.terminal = true
		c.failed = true
		c.failure = ev.Message
	}
}
