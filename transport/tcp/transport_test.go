// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/modbusgw/bridge/modbus"
	"github.com/stretchr/testify/require"
)

func TestTransportOpenWriteReadExactly(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	echoed := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write(buf)
		close(echoed)
	}()

	tr := New(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Open(ctx))
	require.True(t, tr.IsOpen())

	require.NoError(t, tr.Write(ctx, []byte{0x01, 0x02, 0x03, 0x04}))

	<-echoed
	got, err := tr.ReadExactly(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)

	require.NoError(t, tr.Close())
	require.False(t, tr.IsOpen())
}

func TestTransportIncompleteReadOnEarlyClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte{0xAA})
		conn.Close()
	}()

	tr := New(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Open(ctx))

	_, err = tr.ReadExactly(ctx, 4)
	require.Error(t, err)
	var incomplete *modbus.IncompleteReadError
	require.ErrorAs(t, err, &incomplete)
	require.Equal(t, 1, incomplete.Have)
	require.True(t, incomplete.Partial())
}
