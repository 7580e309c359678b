// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package framer defines the Framer capability: given a Transport, read
// exactly one ADU, including every envelope byte. Writes are pass-through
// since the producer already holds a complete frame (spec.md §4.2).
package framer

import (
	"context"

	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport"
)

// Framer reads whole Modbus ADUs off a Transport. Request and response
// framing can differ (RTU does), hence the two methods.
type Framer interface {
	// ReadRequestFrame reads exactly one request ADU.
	ReadRequestFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error)
	// ReadResponseFrame reads exactly one response ADU.
	ReadResponseFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error)
}
