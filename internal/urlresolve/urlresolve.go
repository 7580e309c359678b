// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package urlresolve implements the upstream URL scheme table of
// spec.md §6: "scheme://host:port" or "scheme:///path", with the
// recognized (transport, protocol) scheme compositions.
package urlresolve

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modbusgw/bridge/modbus"
)

// TransportKind names the wire-level link variant.
type TransportKind string

// ProtocolKind names the ADU framing variant.
type ProtocolKind string

const (
	TransportTCP       TransportKind = "tcp"
	TransportSerial    TransportKind = "serial"
	TransportRFC2217   TransportKind = "rfc2217"
	TransportSerialTCP TransportKind = "serial+tcp"

	ProtocolTCP ProtocolKind = "tcp"
	ProtocolRTU ProtocolKind = "rtu"
)

// Resolved is the outcome of parsing an upstream_url.
type Resolved struct {
	Transport TransportKind
	Protocol  ProtocolKind
	Host      string // for TCP-family transports
	Port      int    // for TCP-family transports; 0 if unset
	Path      string // for serial-family transports (device path)

	// Serial carries line settings for TransportSerial/TransportRFC2217/
	// TransportSerialTCP, read from the URL's query string (pyserial's
	// serial_for_url convention), e.g.:
	//   serial:///dev/ttyUSB0?baudrate=9600&parity=N&bytesize=7&stopbits=2
	//   serial:///dev/ttyUSB1?rs485_delay_rts_before_send=10ms&rs485_delay_rts_after_send=10ms
	Serial SerialParams
}

// SerialParams are the line settings a serial-family upstream URL may
// carry in its query string. Zero values mean "use the transport's
// defaults" (transport/serial.Config.withDefaults).
type SerialParams struct {
	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	RS485            bool
	RS485DelayBefore time.Duration
	RS485DelayAfter  time.Duration
}

// Resolve parses raw per spec.md §6's scheme table:
//
//	tcp / bare host:port  -> (tcp, tcp)
//	tcp+rtu                -> (tcp, rtu)
//	serial                 -> (serial, rtu)
//	rfc2217                -> (rfc2217, rtu)
//	serial+tcp             -> (serial, tcp)
//	serial+tcp+rtu         -> (serial+tcp, rtu)
func Resolve(raw string) (Resolved, error) {
	if raw == "" {
		return Resolved{}, &modbus.ConfigError{Reason: "empty upstream url"}
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Resolved{}, &modbus.ConfigError{Reason: "invalid upstream url " + raw + ": " + err.Error()}
	}

	host := u.Hostname()
	if host == "" {
		host = "0"
	}

	transport, protocol, err := schemeComposition(u.Scheme)
	if err != nil {
		return Resolved{}, err
	}

	r := Resolved{Transport: transport, Protocol: protocol, Host: host, Path: u.Path}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Resolved{}, &modbus.ConfigError{Reason: "invalid port in upstream url " + raw}
		}
		r.Port = port
	}

	if transport == TransportSerial || transport == TransportRFC2217 || transport == TransportSerialTCP {
		sp, err := parseSerialParams(u.Query())
		if err != nil {
			return Resolved{}, err
		}
		r.Serial = sp
	}

	return r, nil
}

func parseSerialParams(q url.Values) (SerialParams, error) {
	var sp SerialParams
	if v := q.Get("baudrate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sp, &modbus.ConfigError{Reason: "invalid baudrate " + v}
		}
		sp.BaudRate = n
	}
	if v := q.Get("bytesize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sp, &modbus.ConfigError{Reason: "invalid bytesize " + v}
		}
		sp.DataBits = n
	}
	if v := q.Get("parity"); v != "" {
		sp.Parity = strings.ToUpper(v)
	}
	if v := q.Get("stopbits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sp, &modbus.ConfigError{Reason: "invalid stopbits " + v}
		}
		sp.StopBits = n
	}
	if v := q.Get("rs485"); v == "1" || v == "true" {
		sp.RS485 = true
	}
	if v := q.Get("rs485_delay_rts_before_send"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return sp, &modbus.ConfigError{Reason: "invalid rs485_delay_rts_before_send " + v}
		}
		sp.RS485 = true
		sp.RS485DelayBefore = d
	}
	if v := q.Get("rs485_delay_rts_after_send"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return sp, &modbus.ConfigError{Reason: "invalid rs485_delay_rts_after_send " + v}
		}
		sp.RS485 = true
		sp.RS485DelayAfter = d
	}
	return sp, nil
}

func schemeComposition(scheme string) (TransportKind, ProtocolKind, error) {
	switch scheme {
	case "", "tcp":
		return TransportTCP, ProtocolTCP, nil
	case "tcp+rtu":
		return TransportTCP, ProtocolRTU, nil
	case "serial":
		return TransportSerial, ProtocolRTU, nil
	case "rfc2217":
		return TransportRFC2217, ProtocolRTU, nil
	case "serial+tcp":
		return TransportSerial, ProtocolTCP, nil
	case "serial+tcp+rtu":
		return TransportSerialTCP, ProtocolRTU, nil
	default:
		return "", "", &modbus.ConfigError{Reason: "unrecognized upstream scheme " + scheme}
	}
}

// ListenBind fills in the default Modbus TCP port (502) when bind omits
// one, per spec.md §3 ("listen_bind ... port defaults to 502").
func ListenBind(bind string) (string, error) {
	if bind == "" {
		return "", &modbus.ConfigError{Reason: "empty listen bind"}
	}
	if !strings.Contains(bind, "://") {
		bind = "tcp://" + bind
	}
	u, err := url.Parse(bind)
	if err != nil {
		return "", &modbus.ConfigError{Reason: "invalid listen bind " + bind}
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "502"
	}
	return host + ":" + port, nil
}
