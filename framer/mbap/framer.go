// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mbap implements the Modbus TCP (MBAP) Framer: a 7-byte header
// [txid(2) | proto(2) | length(2) | unit(1)] followed by length-1 PDU
// bytes. Request and response share this layout (spec.md §4.2).
package mbap

import (
	"context"
	"encoding/binary"

	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport"
)

// HeaderSize is the fixed MBAP header length, txid+proto+length+unit.
const HeaderSize = 7

// Framer implements framer.Framer for Modbus TCP.
type Framer struct{}

// New returns an MBAP Framer. It is stateless; one instance is shared by
// every connection.
func New() *Framer { return &Framer{} }

// ReadRequestFrame and ReadResponseFrame are identical for MBAP: read the
// first 6 bytes, interpret bytes 4-5 big-endian as length, then read
// length more bytes (the unit-id byte plus the PDU).
func (f *Framer) ReadRequestFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	return f.readFrame(ctx, t)
}

func (f *Framer) ReadResponseFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	return f.readFrame(ctx, t)
}

func (f *Framer) readFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	header, err := t.ReadExactly(ctx, HeaderSize-1)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(header[4:6])
	rest, err := t.ReadExactly(ctx, int(length))
	if err != nil {
		return nil, err
	}
	frame := make(modbus.Frame, 0, len(header)+len(rest))
	frame = append(frame, header...)
	frame = append(frame, rest...)
	return frame, nil
}

// TransactionID returns the frame's 2-byte big-endian transaction id.
func TransactionID(frame modbus.Frame) uint16 {
	return binary.BigEndian.Uint16(frame[0:2])
}

// UnitID returns the frame's unit identifier (byte 6).
func UnitID(frame modbus.Frame) byte {
	return frame[6]
}

// PDU returns the function code and payload bytes, stripped of the MBAP
// header.
func PDU(frame modbus.Frame) []byte {
	return frame[HeaderSize:]
}

// Encode assembles an MBAP frame from a transaction id, unit id and PDU
// bytes (function code + data).
func Encode(txID uint16, unitID byte, pdu []byte) modbus.Frame {
	length := uint16(len(pdu) + 1) // unit-id + pdu
	frame := make(modbus.Frame, HeaderSize+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txID)
	binary.BigEndian.PutUint16(frame[2:4], 0) // protocol id is always 0
	binary.BigEndian.PutUint16(frame[4:6], length)
	frame[6] = unitID
	copy(frame[HeaderSize:], pdu)
	return frame
}
