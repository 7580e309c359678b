// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package upstream implements the single Modbus device link a Bridge
// serializes all client traffic through (spec.md §4.3). There is
// exactly one Upstream per bridge; its lock is the at-most-one-in-flight
// invariant the whole gateway depends on.
package upstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modbusgw/bridge/framer"
	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport"
)

// State names the upstream link's lifecycle (spec.md §3).
type State int

const (
	Closed State = iota
	Connecting
	Open
	Draining
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config carries the per-device timing the Upstream enforces around
// connect and exchange (spec.md §3's ModbusConfig, minus the URL already
// consumed by the variant builder).
type Config struct {
	Timeout        time.Duration
	ConnectionTime time.Duration
	Attempts       int
}

// Upstream serializes every exchange with a single Modbus device behind
// one Transport+Framer pair, per spec.md §4.3.
type Upstream struct {
	addr   string
	cfg    Config
	t      transport.Transport
	framer framer.Framer

	mu    sync.Mutex
	state State
}

// New wraps a Transport+Framer pair already built for the device's
// resolved scheme (see variant.go) into an Upstream.
func New(addr string, t transport.Transport, f framer.Framer, cfg Config) *Upstream {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	return &Upstream{addr: addr, cfg: cfg, t: t, framer: f, state: Closed}
}

// State reports the upstream's current lifecycle state.
func (u *Upstream) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// IsOpen reports whether the link is currently usable. It takes the
// exchange lock, so it waits for any in-flight Exchange to finish. Used
// for diagnostics only, never to decide whether exchange needs to
// (re)connect; that decision is made inside Exchange itself.
func (u *Upstream) IsOpen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == Open
}

// Close releases the underlying link. Safe to call repeatedly and
// concurrently with Exchange: it takes the exchange lock, so it waits
// for an in-flight exchange to return and then closes the link; the next
// Exchange reconnects.
func (u *Upstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closeLocked()
}

func (u *Upstream) closeLocked() error {
	if u.state == Closed {
		return nil
	}
	err := u.t.Close()
	u.state = Closed
	return err
}

// withOptionalTimeout mirrors the Python source's asyncio.wait_for(coro,
// self.timeout): timeout == 0 means "unset" (spec.md §3's timeout is
// optional), which waits forever rather than expiring instantly the way
// context.WithTimeout(ctx, 0) would.
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// connectLocked dials the transport, then observes connection_time
// (spec.md §4.3 "Connection-time delay"), while holding u.mu — exactly
// as the Python source holds its asyncio.Lock across the post-connect
// sleep.
func (u *Upstream) connectLocked(ctx context.Context) error {
	u.state = Connecting
	ctx, cancel := withOptionalTimeout(ctx, u.cfg.Timeout)
	defer cancel()
	if err := u.t.Open(ctx); err != nil {
		u.state = Closed
		return err
	}
	u.state = Open
	if u.cfg.ConnectionTime > 0 {
		slog.Info("upstream connected, observing connection_time", "addr", u.addr, "connection_time", u.cfg.ConnectionTime)
		select {
		case <-time.After(u.cfg.ConnectionTime):
		case <-ctx.Done():
			u.state = Closed
			return ctx.Err()
		}
	}
	return nil
}

// Exchange sends req to the device and returns its response, making at
// most cfg.Attempts attempts in all; any failure closes the link before
// the next attempt. The whole call is serialized
// under u.mu: no other Exchange may interleave I/O with this one
// (spec.md §4.3, §5).
func (u *Upstream) Exchange(ctx context.Context, req modbus.Frame) (modbus.Frame, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= u.cfg.Attempts; attempt++ {
		resp, err := u.exchangeOnceLocked(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		u.closeLocked()
		if attempt == u.cfg.Attempts {
			break
		}
		slog.Error("upstream exchange failed, retrying", "addr", u.addr, "attempt", attempt, "attempts", u.cfg.Attempts, "err", err)
	}
	return nil, lastErr
}

func (u *Upstream) exchangeOnceLocked(ctx context.Context, req modbus.Frame) (modbus.Frame, error) {
	if u.state != Open {
		if err := u.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := withOptionalTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	if err := u.t.Write(ctx, req); err != nil {
		return nil, err
	}
	resp, err := u.framer.ReadResponseFrame(ctx, u.t)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
