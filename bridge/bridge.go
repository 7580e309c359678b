// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bridge implements one Modbus gateway: a TCP listener speaking
// MBAP to clients, fanned into a single Upstream device connection
// (spec.md §4.4). Client and device framing may differ; when they do,
// the bridge translates ADUs (translate.go).
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/modbusgw/bridge/framer/mbap"
	"github.com/modbusgw/bridge/internal/urlresolve"
	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport/tcp"
	"github.com/modbusgw/bridge/upstream"
)

// Bridge owns one listener and one Upstream. Clients always speak MBAP;
// the Upstream speaks whatever framing its scheme implies.
type Bridge struct {
	bind     string
	upstream *upstream.Upstream
	protocol urlresolve.ProtocolKind
	clientF  *mbap.Framer

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// New builds a Bridge listening on bind and forwarding to up, whose
// resolved scheme carries protocol ("tcp" or "rtu") so the bridge knows
// whether it must translate ADUs between MBAP and RTU.
func New(bind string, up *upstream.Upstream, protocol urlresolve.ProtocolKind) *Bridge {
	return &Bridge{bind: bind, upstream: up, protocol: protocol, clientF: mbap.New()}
}

// Start binds the listen socket. Address() is valid after Start returns.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ln, err := net.Listen("tcp", b.bind)
	if err != nil {
		return err
	}
	b.listener = ln
	mode := "pass-through"
	if b.protocol == urlresolve.ProtocolRTU {
		mode = "translate"
	}
	slog.Info("bridge listening", "addr", ln.Addr().String(), "mode", mode)
	return nil
}

// Address returns the bound listener's address, or "" before Start.
func (b *Bridge) Address() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// IsOpen reports whether the listener is currently accepting.
func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener != nil && !b.closed
}

// ServeForever accepts clients until ctx is canceled or Stop is called,
// spawning one session per client (spec.md §5, "one task per accepted
// client session").
func (b *Bridge) ServeForever(ctx context.Context) error {
	b.mu.Lock()
	ln := b.listener
	b.mu.Unlock()
	if ln == nil {
		if err := b.Start(); err != nil {
			return err
		}
		b.mu.Lock()
		ln = b.listener
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		b.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				b.wg.Wait()
				return nil
			default:
				b.mu.Lock()
				closed := b.closed
				b.mu.Unlock()
				if closed {
					b.wg.Wait()
					return nil
				}
				slog.Error("bridge accept failed", "addr", b.bind, "err", err)
				continue
			}
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleClient(ctx, conn)
		}()
	}
}

// Stop closes the listener and the upstream link. Idempotent (spec.md
// §8 invariant 4). It does not wait for in-flight sessions; callers that
// need that should call ServeForever's context cancellation and then
// wait on its return.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	if b.listener != nil {
		err = b.listener.Close()
	}
	return errors.Join(err, b.upstream.Close())
}

// handleClient runs one client's request/response loop (spec.md §4.4):
// read a request frame, forward to the upstream, write back its
// response, until the client disconnects or a framer/upstream error
// occurs. An upstream error terminates only this client; the upstream
// link itself is left for the next client to use or reconnect.
func (b *Bridge) handleClient(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	defer conn.Close()
	slog.Info("client connected", "addr", addr)

	clientT := tcp.NewFromConn(conn)
	for {
		reqFrame, err := b.clientF.ReadRequestFrame(ctx, clientT)
		if err != nil {
			logClientDisconnect(addr, err)
			return
		}

		upReq := reqFrame
		txID := mbap.TransactionID(reqFrame)
		unitID := mbap.UnitID(reqFrame)
		if b.protocol == urlresolve.ProtocolRTU {
			upReq = mbapToRTURequest(reqFrame)
		}

		upResp, err := b.upstream.Exchange(ctx, upReq)
		if err != nil {
			slog.Error("upstream exchange failed, dropping client", "addr", addr, "err", err)
			return
		}

		respFrame := upResp
		if b.protocol == urlresolve.ProtocolRTU {
			respFrame = rtuToMBAPResponse(upResp, txID, unitID)
		}

		if err := clientT.Write(ctx, respFrame); err != nil {
			slog.Error("client write failed", "addr", addr, "err", err)
			return
		}
	}
}

func logClientDisconnect(addr string, err error) {
	var incomplete *modbus.IncompleteReadError
	if errors.As(err, &incomplete) && !incomplete.Partial() {
		slog.Info("client disconnected", "addr", addr)
		return
	}
	if errors.Is(err, io.EOF) {
		slog.Info("client disconnected", "addr", addr)
		return
	}
	slog.Error("client read error", "addr", addr, "err", err)
}
