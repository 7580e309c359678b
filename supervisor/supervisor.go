// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package supervisor constructs a Bridge per configured device and runs
// them concurrently, per spec.md §4.5.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modbusgw/bridge/bridge"
	"github.com/modbusgw/bridge/internal/config"
	"github.com/modbusgw/bridge/internal/urlresolve"
	"github.com/modbusgw/bridge/upstream"
)

// Supervisor owns every Bridge the process runs.
type Supervisor struct {
	bridges []*bridge.Bridge
}

// Build constructs one Bridge per cfg.Devices entry, resolving each
// device's upstream URL into its Transport+Framer variant.
func Build(cfg *config.Config) (*Supervisor, error) {
	s := &Supervisor{}
	for _, d := range cfg.Devices {
		resolved, err := urlresolve.Resolve(d.Modbus.URL)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Modbus.URL, err)
		}
		bind, err := urlresolve.ListenBind(d.Listen.Bind)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Modbus.URL, err)
		}

		variant, addr, err := upstream.Build(resolved)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Modbus.URL, err)
		}

		up := upstream.New(addr, variant.Transport, variant.Framer, upstream.Config{
			Timeout:        d.Modbus.Timeout,
			ConnectionTime: d.Modbus.ConnectionTime,
			Attempts:       d.Modbus.Attempts,
		})

		s.bridges = append(s.bridges, bridge.New(bind, up, resolved.Protocol))
	}
	return s, nil
}

// Run starts every bridge and blocks until ctx is canceled, then stops
// every bridge and waits for their in-flight sessions to finish. An
// in-flight upstream exchange is not interrupted: Bridge.Stop's
// upstream.Close waits for the exchange lock, and the attempt in
// progress is bounded only by Upstream.Exchange's own per-attempt
// timeout context (none when the timeout is unset).
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.bridges))

	for i, b := range s.bridges {
		if err := b.Start(); err != nil {
			return fmt.Errorf("starting bridge %d: %w", i, err)
		}
		slog.Info("bridge started", "addr", b.Address())
	}

	for _, b := range s.bridges {
		wg.Add(1)
		go func(b *bridge.Bridge) {
			defer wg.Done()
			if err := b.ServeForever(ctx); err != nil {
				errs <- err
			}
		}(b)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop closes every bridge. Idempotent with Run's own context-triggered
// shutdown; calling both is safe.
func (s *Supervisor) Stop() {
	for _, b := range s.bridges {
		if err := b.Stop(); err != nil {
			slog.Error("error stopping bridge", "addr", b.Address(), "err", err)
		}
	}
}
