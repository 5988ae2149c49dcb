package relay

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/relayctl/relayproxy/internal/logger"
	"github.com/relayctl/relayproxy/internal/telemetry"
	"github.com/relayctl/relayproxy/pkg/metrics"
)

// StartConnection is the ConnectionSupervisor of spec.md §4.3: not a
// long-lived object, but the conceptual grouping that mints the
// connection token, pairs the two RelayTasks, and registers them in wg
// so the orchestrator can await every in-flight relay at shutdown.
//
// Its invariant: if both relays are spawned, exactly one ConnectionOpened
// has already been emitted (by the caller, once the dial succeeded) and
// exactly one ConnectionClosed will be emitted, by the upstream-direction
// task.
func StartConnection(wg *sync.WaitGroup, clientConn, upstreamConn net.Conn, peerAddr string, shutdown *Token, sink metrics.Sink) {
	connToken := NewToken()

	connID := uuid.NewString()
	spanCtx, span := telemetry.StartConnectionSpan(context.Background(), connID, peerAddr, upstreamConn.RemoteAddr().String())

	// logCtx carries both the OpenTelemetry span (from spanCtx) and a
	// LogContext, so every log call made through it (by this function
	// and by the two RelayTasks) is tagged with connection_id and
	// peer_addr without threading those as separate parameters.
	logCtx := logger.WithContext(spanCtx, logger.NewLogContext(connID, peerAddr))
	logger.InfoCtx(logCtx, "connection opened", logger.TargetAddr(upstreamConn.RemoteAddr().String()))

	up := &RelayTask{
		Direction: Upstream,
		Src:       clientConn,
		Dst:       upstreamConn,
		PeerAddr:  peerAddr,
		ConnToken: connToken,
		Shutdown:  shutdown,
		Sink:      sink,
		Ctx:       logCtx,
	}
	down := &RelayTask{
		Direction: Downstream,
		Src:       upstreamConn,
		Dst:       clientConn,
		PeerAddr:  peerAddr,
		ConnToken: connToken,
		Shutdown:  shutdown,
		Sink:      sink,
		Ctx:       logCtx,
	}

	var local sync.WaitGroup
	local.Add(2)
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer local.Done()
		up.Run()
		// Canonical ConnectionClosed emitter (spec.md §4.2): the
		// upstream-direction task issues it immediately after its own
		// loop exits, without waiting for its sibling.
		sink.Send(metrics.MetricEvent{Kind: metrics.ConnectionClosed, Addr: peerAddr})
		logger.InfoCtx(logCtx, "connection closed")
		span.End()
	}()
	go func() {
		defer wg.Done()
		defer local.Done()
		down.Run()
	}()

	go func() {
		local.Wait()
		if err := clientConn.Close(); err != nil {
			logger.DebugCtx(logCtx, "client conn close error", logger.Err(err))
		}
		if err := upstreamConn.Close(); err != nil {
			logger.DebugCtx(logCtx, "upstream conn close error", logger.Err(err))
		}
	}()
}
