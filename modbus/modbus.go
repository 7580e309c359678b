// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the types and function-code constants shared by
// every framer, transport and upstream in the gateway. The gateway never
// interprets a PDU's payload; the constants below exist only so a framer
// can tell how many more bytes a frame needs.
package modbus

import "fmt"

// Frame is an opaque Modbus ADU: header/envelope bytes plus PDU, exactly
// as read off the wire. The gateway never inspects or rewrites it beyond
// what framing requires.
type Frame []byte

// Function codes. Only the codes in the static, dynamic and general sets
// below affect frame length; every other code, named here or not, is
// handled by the framer's unknown-function path.
const (
	FuncCodeReadCoils                  = 0x01
	FuncCodeReadDiscreteInputs         = 0x02
	FuncCodeReadHoldingRegisters       = 0x03
	FuncCodeReadInputRegisters         = 0x04
	FuncCodeWriteSingleCoil            = 0x05
	FuncCodeWriteSingleRegister        = 0x06
	FuncCodeReadExceptionStatus        = 0x07
	FuncCodeDiagnostics                = 0x08
	FuncCodeGetCommEventCounter        = 0x0B
	FuncCodeGetCommEventLog            = 0x0C
	FuncCodeWriteMultipleCoils         = 0x0F
	FuncCodeWriteMultipleRegisters     = 0x10
	FuncCodeReportServerID             = 0x11
	FuncCodeReadFileRecord             = 0x14
	FuncCodeWriteFileRecord            = 0x15
	FuncCodeMaskWriteRegister          = 0x16
	FuncCodeReadWriteMultipleRegisters = 0x17
	FuncCodeReadFIFOQueue              = 0x18
)

// ExceptionBit marks a response PDU whose function code signals a Modbus
// exception (func | 0x80).
const ExceptionBit = 0x80

// IsException reports whether funcCode is an exception response.
func IsException(funcCode byte) bool {
	return funcCode&ExceptionBit != 0
}

// staticRequestFuncs are general request functions whose request frame
// has a fixed length once the header is known.
var staticRequestFuncs = map[byte]bool{
	FuncCodeReadCoils:            true,
	FuncCodeReadDiscreteInputs:   true,
	FuncCodeReadHoldingRegisters: true,
	FuncCodeReadInputRegisters:   true,
	FuncCodeWriteSingleCoil:      true,
	FuncCodeWriteSingleRegister:  true,
}

// dynamicRequestFuncs carry an explicit byte-count field in the request.
var dynamicRequestFuncs = map[byte]bool{
	FuncCodeWriteMultipleCoils:     true,
	FuncCodeWriteMultipleRegisters: true,
}

// IsStaticRequestFunc reports whether funcCode's request frame is fixed
// length (spec.md §4.2, "static-length functions").
func IsStaticRequestFunc(funcCode byte) bool { return staticRequestFuncs[funcCode] }

// IsDynamicRequestFunc reports whether funcCode carries a request byte
// count (spec.md §4.2, "dynamic-length functions").
func IsDynamicRequestFunc(funcCode byte) bool { return dynamicRequestFuncs[funcCode] }

// staticResponseFuncs are write functions whose response frame is fixed
// length.
var staticResponseFuncs = map[byte]bool{
	FuncCodeWriteSingleCoil:        true,
	FuncCodeWriteSingleRegister:    true,
	FuncCodeWriteMultipleCoils:     true,
	FuncCodeWriteMultipleRegisters: true,
}

// IsStaticResponseFunc reports whether funcCode's response frame is fixed
// length (spec.md §4.2, "fixed-response functions").
func IsStaticResponseFunc(funcCode byte) bool { return staticResponseFuncs[funcCode] }

// generalFuncs is the set of data-access function codes the RTU framer
// recognizes at all (spec.md §4.2's GENERAL_FUNCS in the original
// source). Any other code is "unknown" for framing purposes.
var generalFuncs = map[byte]bool{
	FuncCodeReadCoils:              true,
	FuncCodeReadDiscreteInputs:     true,
	FuncCodeReadHoldingRegisters:   true,
	FuncCodeReadInputRegisters:     true,
	FuncCodeWriteSingleCoil:        true,
	FuncCodeWriteSingleRegister:    true,
	FuncCodeWriteMultipleCoils:     true,
	FuncCodeWriteMultipleRegisters: true,
}

// IsKnownFunc reports whether funcCode is one the framer knows how to
// size. Unknown codes trigger the conservative "resync by closing the
// link" policy described in spec.md §4.2 / §9.
func IsKnownFunc(funcCode byte) bool { return generalFuncs[funcCode] }

// IncompleteReadError mirrors the Python source's asyncio.IncompleteReadError:
// the peer closed (or the link failed) before the requested byte count
// was read. Have == 0 (Partial() false) means a clean disconnect (spec.md §7).
type IncompleteReadError struct {
	Want int
	Have int
}

func (e *IncompleteReadError) Error() string {
	return fmt.Sprintf("modbus: incomplete read: have %d, want %d", e.Have, e.Want)
}

// Partial reports whether any bytes at all were read before the failure.
func (e *IncompleteReadError) Partial() bool { return e.Have > 0 }

// ConnectError wraps a failure to establish the upstream link (TCP dial
// refused, serial device missing, connect timeout).
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("modbus: failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports that an exchange exceeded the configured timeout.
// It is treated as an I/O failure: the link is closed and the exchange
// retried, per spec.md §4.3 step "On any exception inside steps 2-4".
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("modbus: %s timed out", e.Op)
}

// FrameError reports that the framer could not determine a frame's
// boundary, typically because of an unrecognized function code under
// strict RTU framing (spec.md §7).
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("modbus: frame error: %s", e.Reason)
}

// ConfigError reports a fatal, non-retryable configuration problem (bad
// URL, missing required field). The process exits non-zero on this error.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("modbus: config error: %s", e.Reason)
}
