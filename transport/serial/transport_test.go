// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build linux || darwin

package serial

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// openPtyPair opens a pseudo-tty pair and returns both ends. The test
// treats the master side as the "Modbus device".
func openPtyPair(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave
}

func TestTransportReadExactlyAggregatesBytes(t *testing.T) {
	master, slave := openPtyPair(t)

	tr := New(Config{Device: slave.Name(), Timeout: 2 * time.Second})
	// Borrow the slave fd directly instead of Open() dialing a fresh fd,
	// so the test exercises ReadExactly/Write without a real baud config.
	tr.port = slave

	done := make(chan struct{})
	go func() {
		defer close(done)
		master.Write([]byte{0x01, 0x02})
		time.Sleep(10 * time.Millisecond)
		master.Write([]byte{0x03, 0x04})
	}()

	ctx := context.Background()
	got, err := tr.ReadExactly(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
	<-done
}

func TestTransportWriteRoundTrip(t *testing.T) {
	master, slave := openPtyPair(t)

	tr := New(Config{Device: slave.Name(), Timeout: 2 * time.Second})
	tr.port = slave

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		n, _ := master.Read(buf)
		readDone <- buf[:n]
	}()

	require.NoError(t, tr.Write(context.Background(), []byte{0xAA, 0xBB, 0xCC}))
	got := <-readDone
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, got)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Device: "/dev/ttyUSB0"}.withDefaults()
	require.Equal(t, DefaultBaudRate, cfg.BaudRate)
	require.Equal(t, DefaultDataBits, cfg.DataBits)
	require.Equal(t, "E", cfg.Parity)
	require.Equal(t, DefaultStopBits, cfg.StopBits)
}
