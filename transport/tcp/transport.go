// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcp implements the TCP-socket Transport variant: a plain
// byte-oriented duplex link to host:port, used both for Modbus TCP
// upstream devices and for RTU-over-TCP ones.
package tcp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/modbusgw/bridge/modbus"
)

// Transport is a TCP-socket backed transport.Transport.
type Transport struct {
	Address string

	mu   sync.Mutex
	conn net.Conn
}

// New allocates a Transport dialing address on Open.
func New(address string) *Transport {
	return &Transport{Address: address}
}

// NewFromConn wraps an already-connected net.Conn (an accepted client
// socket) as a Transport. Open is then a no-op; Close tears down conn.
func NewFromConn(conn net.Conn) *Transport {
	return &Transport{Address: conn.RemoteAddr().String(), conn: conn}
}

// Open dials the remote host:port. The deadline carried by ctx bounds
// the dial; Upstream is responsible for wrapping the call with the
// configured timeout.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return &modbus.ConnectError{Addr: t.Address, Err: err}
	}
	t.conn = conn
	slog.Debug("tcp transport connected", "addr", t.Address)
	return nil
}

// Close closes the socket if open.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsOpen reports whether the socket is currently connected.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Write writes data in full.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &modbus.IncompleteReadError{Want: len(data), Have: 0}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	slog.Debug("tcp transport write", "addr", t.Address, "n", len(data))
	_, err := conn.Write(data)
	return err
}

// ReadExactly reads exactly n bytes or returns *modbus.IncompleteReadError
// when the peer closes the connection early (spec.md §4.1).
func (t *Transport) ReadExactly(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, &modbus.IncompleteReadError{Want: n, Have: 0}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	buf := make([]byte, n)
	have, err := io.ReadFull(conn, buf)
	if err != nil {
		return nil, &modbus.IncompleteReadError{Want: n, Have: have}
	}
	return buf, nil
}
