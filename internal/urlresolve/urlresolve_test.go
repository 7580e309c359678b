// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package urlresolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveSchemeCompositions(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		wantTransport TransportKind
		wantProtocol  ProtocolKind
	}{
		{"bare host:port", "plc.acme.org:502", TransportTCP, ProtocolTCP},
		{"tcp", "tcp://plc.acme.org:502", TransportTCP, ProtocolTCP},
		{"tcp+rtu", "tcp+rtu://plc.acme.org:502", TransportTCP, ProtocolRTU},
		{"serial", "serial:///dev/ttyUSB0", TransportSerial, ProtocolRTU},
		{"rfc2217", "rfc2217://term-server:4000", TransportRFC2217, ProtocolRTU},
		{"serial+tcp", "serial+tcp://term-server:4000", TransportSerial, ProtocolTCP},
		{"serial+tcp+rtu", "serial+tcp+rtu://term-server:4000", TransportSerialTCP, ProtocolRTU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(tt.url)
			require.NoError(t, err)
			require.Equal(t, tt.wantTransport, r.Transport)
			require.Equal(t, tt.wantProtocol, r.Protocol)
		})
	}
}

func TestResolveEmptyHostBecomesZero(t *testing.T) {
	r, err := Resolve("tcp://:502")
	require.NoError(t, err)
	require.Equal(t, "0", r.Host)
	require.Equal(t, 502, r.Port)
}

func TestResolveSerialQueryParams(t *testing.T) {
	r, err := Resolve("serial:///dev/ttyUSB0?baudrate=9600&parity=n&bytesize=7&stopbits=2" +
		"&rs485_delay_rts_before_send=10ms&rs485_delay_rts_after_send=20ms")
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", r.Path)
	require.Equal(t, 9600, r.Serial.BaudRate)
	require.Equal(t, "N", r.Serial.Parity)
	require.Equal(t, 7, r.Serial.DataBits)
	require.Equal(t, 2, r.Serial.StopBits)
	require.True(t, r.Serial.RS485)
	require.Equal(t, 10*time.Millisecond, r.Serial.RS485DelayBefore)
	require.Equal(t, 20*time.Millisecond, r.Serial.RS485DelayAfter)
}

func TestResolveSerialWithoutQueryUsesZeroValues(t *testing.T) {
	r, err := Resolve("serial:///dev/ttyUSB0")
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", r.Path)
	require.Equal(t, 0, r.Serial.BaudRate)
	require.False(t, r.Serial.RS485)
}

func TestResolveUnknownScheme(t *testing.T) {
	_, err := Resolve("carrier-pigeon://plc.acme.org:502")
	require.Error(t, err)
}

func TestListenBindDefaultsPort502(t *testing.T) {
	bind, err := ListenBind("0.0.0.0")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:502", bind)
}

func TestListenBindExplicitPort(t *testing.T) {
	bind, err := ListenBind("127.0.0.1:1502")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1502", bind)
}
