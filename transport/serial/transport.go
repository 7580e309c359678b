// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial implements the local serial-port Transport variant;
// RFC2217-tunneled devices are dialed with transport/tcp instead. There
// is no framing here: ReadExactly aggregates bytes until n arrive or the
// configured inter-character timeout fires.
package serial

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/modbusgw/bridge/modbus"
)

// Modbus RTU line defaults (spec.md §4.1).
const (
	DefaultBaudRate = 19200
	DefaultDataBits = 8
	DefaultParity   = "E"
	DefaultStopBits = 1
)

// RS485 carries half-duplex transceiver timing, optional and only
// meaningful for real RS-485 adapters.
type RS485 struct {
	Enabled            bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

// Config configures the serial port. Device is the local device path
// (e.g. "/dev/ttyUSB0") that Open opens.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
	RS485    RS485
}

// withDefaults fills unset fields with the Modbus RTU conventions
// (19200-8-E-1).
func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	return c
}

// Transport is a serial-port backed transport.Transport.
type Transport struct {
	cfg Config

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// New allocates a Transport for the given serial configuration.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

// Open opens the serial port if not already open.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	gc := &serial.Config{
		Address:  t.cfg.Device,
		BaudRate: t.cfg.BaudRate,
		DataBits: t.cfg.DataBits,
		StopBits: t.cfg.StopBits,
		Parity:   serial.Parity(t.cfg.Parity[0]),
		Timeout:  t.cfg.Timeout,
		RS485: serial.RS485Config{
			Enabled:            t.cfg.RS485.Enabled,
			DelayRtsBeforeSend: t.cfg.RS485.DelayRtsBeforeSend,
			DelayRtsAfterSend:  t.cfg.RS485.DelayRtsAfterSend,
			RtsHighDuringSend:  t.cfg.RS485.RtsHighDuringSend,
			RtsHighAfterSend:   t.cfg.RS485.RtsHighAfterSend,
			RxDuringTx:         t.cfg.RS485.RxDuringTx,
		},
	}
	port, err := serial.Open(gc)
	if err != nil {
		return &modbus.ConnectError{Addr: t.cfg.Device, Err: err}
	}
	t.port = port
	slog.Debug("serial transport opened", "device", t.cfg.Device, "baud", t.cfg.BaudRate)
	return nil
}

// Close closes the serial port if open.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// IsOpen reports whether the serial port is currently open.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Write writes data in full.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return &modbus.IncompleteReadError{Want: len(data), Have: 0}
	}
	slog.Debug("serial transport write", "device", t.cfg.Device, "n", len(data))
	_, err := port.Write(data)
	return err
}

// ReadExactly reads exactly n bytes, relying on the port's configured
// inter-character timeout to bound each individual read; a read that
// returns fewer bytes than requested (io.EOF equivalent: a device that
// has stopped responding) surfaces as *modbus.IncompleteReadError.
func (t *Transport) ReadExactly(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil, &modbus.IncompleteReadError{Want: n, Have: 0}
	}
	buf := make([]byte, n)
	have, err := io.ReadFull(port, buf)
	if err != nil {
		return nil, &modbus.IncompleteReadError{Want: n, Have: have}
	}
	return buf, nil
}
