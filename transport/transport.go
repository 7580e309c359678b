// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte-oriented duplex link a Framer reads
// whole ADUs from. A Transport knows nothing about Modbus framing; it
// only opens/closes a link and moves bytes. Timeouts are not a Transport
// concern — the caller (Upstream, Bridge) bounds whole operations with a
// context deadline.
package transport

import "context"

// Transport is the capability set spec.md §4.1 requires of every link
// variant (TCP socket, serial port).
type Transport interface {
	// Open dials or opens the underlying link. Calling Open while already
	// open is a no-op.
	Open(ctx context.Context) error

	// Close releases the underlying link. Calling Close while already
	// closed is a no-op.
	Close() error

	// Write writes data in full or returns an error; partial writes are
	// never silently accepted.
	Write(ctx context.Context, data []byte) error

	// ReadExactly reads exactly n bytes, or fails with
	// *modbus.IncompleteReadError when the peer closes (TCP) or the
	// inter-character timeout fires (serial) before n bytes arrive.
	ReadExactly(ctx context.Context, n int) ([]byte, error)

	// IsOpen reports whether the link is currently usable.
	IsOpen() bool
}
