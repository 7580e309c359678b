// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the RTU Framer: [address(1) | function(1) |
// payload(...) | crc(2)]. The framer never verifies the CRC — it
// preserves every byte verbatim so the device or client can check it
// itself (spec.md §4.2).
package rtu

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport"
)

// requestHeaderSize is [address, func, starting_address(2), value(2),
// byte_count(1)] — enough to size any request (spec.md §4.2).
const requestHeaderSize = 7

// responseHeaderSize is [address, func].
const responseHeaderSize = 2

// Framer implements framer.Framer for Modbus RTU.
type Framer struct{}

// New returns an RTU Framer. It is stateless.
func New() *Framer { return &Framer{} }

// ReadRequestFrame reads a request ADU: 7 header bytes, then however
// many more the function code calls for.
func (f *Framer) ReadRequestFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	header, err := t.ReadExactly(ctx, requestHeaderSize)
	if err != nil {
		return nil, err
	}
	funcCode := header[1]
	byteCount := header[6]

	var extra int
	unknown := false
	switch {
	case modbus.IsStaticRequestFunc(funcCode):
		extra = 1 // second CRC byte; first already covered by the header read
	case modbus.IsDynamicRequestFunc(funcCode):
		extra = int(byteCount) + 2 // payload tail + CRC
	default:
		slog.Warn("rtu framer: unknown request function code", "func", funcCode)
		extra = 1
		unknown = true
	}

	rest, err := t.ReadExactly(ctx, extra)
	if err != nil {
		return nil, err
	}
	frame := joinFrame(header, rest)
	if unknown {
		// Still drain the guessed-length bytes above to stay
		// resynchronized with the stream, but don't hand the caller a
		// frame it would trust as well-formed (spec.md §4.2/§9).
		return frame, &modbus.FrameError{Reason: fmt.Sprintf("unknown request function code 0x%02x", funcCode)}
	}
	return frame, nil
}

// ReadResponseFrame reads a response ADU: 2 header bytes (address, func),
// then however many more the function code (or the exception bit) calls
// for.
func (f *Framer) ReadResponseFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	header, err := t.ReadExactly(ctx, responseHeaderSize)
	if err != nil {
		return nil, err
	}
	funcCode := header[1]

	switch {
	case modbus.IsStaticResponseFunc(funcCode):
		// 4 fixed payload bytes, then CRC.
		rest, err := t.ReadExactly(ctx, 4+2)
		if err != nil {
			return nil, err
		}
		return joinFrame(header, rest), nil

	case modbus.IsKnownFunc(funcCode):
		// Variable-response read function: one count byte N, then N
		// payload bytes, then CRC.
		countByte, err := t.ReadExactly(ctx, 1)
		if err != nil {
			return nil, err
		}
		n := int(countByte[0])
		rest, err := t.ReadExactly(ctx, n+2)
		if err != nil {
			return nil, err
		}
		return joinFrame(header, countByte, rest), nil

	case modbus.IsException(funcCode):
		// Exception code, then CRC.
		rest, err := t.ReadExactly(ctx, 1+2)
		if err != nil {
			return nil, err
		}
		return joinFrame(header, rest), nil

	default:
		slog.Warn("rtu framer: unknown response function code", "func", funcCode)
		rest, err := t.ReadExactly(ctx, 2)
		if err != nil {
			return nil, err
		}
		return joinFrame(header, rest), &modbus.FrameError{Reason: fmt.Sprintf("unknown response function code 0x%02x", funcCode)}
	}
}

func joinFrame(parts ...[]byte) modbus.Frame {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	frame := make(modbus.Frame, 0, n)
	for _, p := range parts {
		frame = append(frame, p...)
	}
	return frame
}
