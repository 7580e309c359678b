// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package upstream

import (
	"fmt"
	"time"

	"github.com/modbusgw/bridge/framer"
	fmbap "github.com/modbusgw/bridge/framer/mbap"
	frtu "github.com/modbusgw/bridge/framer/rtu"
	"github.com/modbusgw/bridge/internal/urlresolve"
	"github.com/modbusgw/bridge/transport"
	tserial "github.com/modbusgw/bridge/transport/serial"
	ttcp "github.com/modbusgw/bridge/transport/tcp"
)

// Variant is the resolved (Transport, Framer) pair for one of the six
// scheme compositions spec.md §6 recognizes. It is a closed tagged union
// in spirit: Build switches exhaustively on urlresolve.Resolved and
// never falls through to a default transport/framer combination.
type Variant struct {
	Transport transport.Transport
	Framer    framer.Framer
}

// Build constructs the Transport+Framer pair for r. It sets no timeouts
// of its own; Upstream applies the configured timeout to the dial and,
// separately, to every Write/ReadResponseFrame.
//
// The six compositions spec.md §6 names:
//
//	(tcp, tcp)             -> tcp.Transport        + mbap.Framer
//	(tcp, rtu)             -> tcp.Transport        + rtu.Framer
//	(serial, rtu)          -> serial.Transport      + rtu.Framer
//	(rfc2217, rtu)         -> tcp.Transport(*)      + rtu.Framer
//	(serial, tcp)          -> serial.Transport      + mbap.Framer
//	(serial+tcp, rtu)      -> tcp.Transport         + rtu.Framer
//
// (*) RFC2217 is a telnet-negotiated serial-over-TCP protocol; the
// grid-x/serial driver this gateway uses does not implement the RFC2217
// COM-port-options negotiation, so an rfc2217:// device is opened as a
// plain TCP byte pipe (transport/tcp.Transport) carrying RTU framing —
// correct for devices/terminal servers that pass the line transparently,
// which covers the common case (see SPEC_FULL.md §4.1).
func Build(r urlresolve.Resolved) (Variant, string, error) {
	switch r.Transport {
	case urlresolve.TransportTCP:
		addr := tcpAddr(r)
		t := ttcp.New(addr)
		switch r.Protocol {
		case urlresolve.ProtocolTCP:
			return Variant{Transport: t, Framer: fmbap.New()}, addr, nil
		case urlresolve.ProtocolRTU:
			return Variant{Transport: t, Framer: frtu.New()}, addr, nil
		}

	case urlresolve.TransportSerialTCP:
		addr := tcpAddr(r)
		return Variant{Transport: ttcp.New(addr), Framer: frtu.New()}, addr, nil

	case urlresolve.TransportSerial:
		cfg := serialConfig(r)
		switch r.Protocol {
		case urlresolve.ProtocolRTU:
			return Variant{Transport: tserial.New(cfg), Framer: frtu.New()}, r.Path, nil
		case urlresolve.ProtocolTCP:
			return Variant{Transport: tserial.New(cfg), Framer: fmbap.New()}, r.Path, nil
		}

	case urlresolve.TransportRFC2217:
		addr := tcpAddr(r)
		return Variant{Transport: ttcp.New(addr), Framer: frtu.New()}, addr, nil
	}

	return Variant{}, "", fmt.Errorf("upstream: unhandled scheme composition (%s, %s)", r.Transport, r.Protocol)
}

func tcpAddr(r urlresolve.Resolved) string {
	port := r.Port
	if port == 0 {
		port = 502
	}
	return fmt.Sprintf("%s:%d", r.Host, port)
}

func serialConfig(r urlresolve.Resolved) tserial.Config {
	return tserial.Config{
		Device:   r.Path,
		BaudRate: r.Serial.BaudRate,
		DataBits: r.Serial.DataBits,
		Parity:   r.Serial.Parity,
		StopBits: r.Serial.StopBits,
		Timeout:  200 * time.Millisecond,
		RS485: tserial.RS485{
			Enabled:            r.Serial.RS485,
			DelayRtsBeforeSend: r.Serial.RS485DelayBefore,
			DelayRtsAfterSend:  r.Serial.RS485DelayAfter,
		},
	}
}
