// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package upstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modbusgw/bridge/modbus"
	"github.com/modbusgw/bridge/transport"
)

// fakeTransport simulates a device link whose Open/Write/ReadExactly can
// be scripted to fail a fixed number of times before succeeding, so
// Exchange's retry/reconnect path can be exercised without a real socket.
type fakeTransport struct {
	mu         sync.Mutex
	open       bool
	openFails  int
	writeFails int
	readFails  int
	opens      int
	response   []byte
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openFails > 0 {
		f.openFails--
		return &modbus.ConnectError{Addr: "fake", Err: errors.New("refused")}
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeFails > 0 {
		f.writeFails--
		return errors.New("write failed")
	}
	return nil
}

func (f *fakeTransport) ReadExactly(ctx context.Context, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readFails > 0 {
		f.readFails--
		return nil, &modbus.IncompleteReadError{Want: n, Have: 0}
	}
	return f.response, nil
}

var _ transport.Transport = (*fakeTransport)(nil)

// fakeFramer hands back the transport's canned response frame whole,
// regardless of n, since these tests don't exercise real framing.
type fakeFramer struct{}

func (fakeFramer) ReadRequestFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	return t.ReadExactly(ctx, 1)
}

func (fakeFramer) ReadResponseFrame(ctx context.Context, t transport.Transport) (modbus.Frame, error) {
	return t.ReadExactly(ctx, 1)
}

func TestExchangeSucceedsOnFirstAttempt(t *testing.T) {
	ft := &fakeTransport{response: []byte{0x01, 0x03, 0x00}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 2})

	resp, err := u.Exchange(context.Background(), modbus.Frame{0x01, 0x03})
	require.NoError(t, err)
	require.Equal(t, modbus.Frame{0x01, 0x03, 0x00}, resp)
	require.Equal(t, Open, u.State())
}

func TestExchangeRetriesAfterTransientFailure(t *testing.T) {
	ft := &fakeTransport{writeFails: 1, response: []byte{0xAA}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 2})

	resp, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.NoError(t, err)
	require.Equal(t, modbus.Frame{0xAA}, resp)
	require.Equal(t, 2, ft.opens) // closed and reconnected once
}

func TestExchangeExhaustsAttemptsAndPropagates(t *testing.T) {
	ft := &fakeTransport{writeFails: 5, response: []byte{0xAA}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 2})

	_, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.Error(t, err)
	require.Equal(t, Closed, u.State())
}

func TestExchangeSucceedsWithZeroTimeout(t *testing.T) {
	// Config.Timeout == 0 means "unset" (spec.md §3, optional), matching
	// the Python source's asyncio.wait_for(coro, None) -- wait forever,
	// not expire instantly.
	ft := &fakeTransport{response: []byte{0x2A}}
	u := New("fake", ft, fakeFramer{}, Config{Attempts: 1})

	resp, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.NoError(t, err)
	require.Equal(t, modbus.Frame{0x2A}, resp)
}

func TestExchangeReconnectsAfterConnectFailure(t *testing.T) {
	ft := &fakeTransport{openFails: 1, response: []byte{0x7E}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 2})

	resp, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.NoError(t, err)
	require.Equal(t, modbus.Frame{0x7E}, resp)
}

func TestExchangeObservesConnectionTimeDelay(t *testing.T) {
	ft := &fakeTransport{response: []byte{0x01}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, ConnectionTime: 40 * time.Millisecond, Attempts: 1})

	start := time.Now()
	_, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestExchangeSerializesConcurrentCallers(t *testing.T) {
	ft := &fakeTransport{response: []byte{0x01}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Exchange(context.Background(), modbus.Frame{0x01})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ft.opens) // all 8 exchanges shared the one connect
}

func TestCloseIsIdempotent(t *testing.T) {
	ft := &fakeTransport{response: []byte{0x01}}
	u := New("fake", ft, fakeFramer{}, Config{Timeout: time.Second, Attempts: 1})
	_, err := u.Exchange(context.Background(), modbus.Frame{0x01})
	require.NoError(t, err)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	require.Equal(t, Closed, u.State())
}
