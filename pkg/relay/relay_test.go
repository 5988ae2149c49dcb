package relay

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayctl/relayproxy/internal/testutil"
	"github.com/relayctl/relayproxy/pkg/metrics"
)

func TestRelayTask_CopiesBytesAndEmitsMetrics(t *testing.T) {
	server, err := testutil.NewEchoServer()
	require.NoError(t, err)
	defer server.Close()

	clientConn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer clientConn.Close()

	events := make(chan metrics.MetricEvent, 16)
	sink := metrics.NewSink(events)

	task := &RelayTask{
		Direction: Upstream,
		Src:       clientConn,
		Dst:       clientConn,
		PeerAddr:  clientConn.RemoteAddr().String(),
		ConnToken: NewToken(),
		Shutdown:  NewToken(),
		Sink:      sink,
	}

	payload := []byte("hello relay")
	_, err = clientConn.Write(payload)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		task.Run()
		close(done)
	}()

	select {
	case ev := <-events:
		assert.Equal(t, metrics.BytesUpstream, ev.Kind)
		assert.Equal(t, uint64(len(payload)), ev.N)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for byte metric")
	}

	task.ConnToken.Trip()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RelayTask.Run did not exit after token trip")
	}
}

func TestStartConnection_EchoRoundTrip(t *testing.T) {
	server, err := testutil.NewEchoServer()
	require.NoError(t, err)
	defer server.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		upstreamConn, err := net.Dial("tcp", server.Addr())
		if err != nil {
			conn.Close()
			return
		}
		var wg sync.WaitGroup
		StartConnection(&wg, conn, upstreamConn, conn.RemoteAddr().String(), NewToken(), metrics.NewSink(nil))
		wg.Wait()
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()

	payload := []byte("round trip payload")
	_, err = clientConn.Write(payload)
	require.NoError(t, err)

	reply := make([]byte, len(payload))
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = readFull(clientConn, reply)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, reply))
}

func TestStartConnection_ShutdownDrainsConnection(t *testing.T) {
	server, err := testutil.NewEchoServer()
	require.NoError(t, err)
	defer server.Close()

	clientSide, proxySide := net.Pipe()
	upstreamConn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)

	shutdown := NewToken()
	var wg sync.WaitGroup
	StartConnection(&wg, proxySide, upstreamConn, "pipe-peer", shutdown, metrics.NewSink(nil))

	shutdown.Trip()

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("relay tasks did not drain after shutdown trip")
	}

	_ = clientSide.Close()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
