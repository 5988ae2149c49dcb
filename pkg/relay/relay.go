package relay

import (
	"context"
	"net"
	"time"

	"github.com/relayctl/relayproxy/internal/logger"
	"github.com/relayctl/relayproxy/internal/telemetry"
	"github.com/relayctl/relayproxy/pkg/bufpool"
	"github.com/relayctl/relayproxy/pkg/metrics"
)

// Direction tags which half of a connection a RelayTask services.
type Direction int

const (
	// Upstream carries client -> upstream bytes. Per spec.md §4.2, the
	// upstream-direction task is the sole emitter of ConnectionClosed.
	Upstream Direction = iota
	// Downstream carries upstream -> client bytes.
	Downstream
)

func (d Direction) String() string {
	if d == Upstream {
		return "upstream"
	}
	return "downstream"
}

// RelayTask is the per-direction byte-copy loop described in spec.md
// §4.2. Each RelayTask exclusively owns the read half of its source
// conn and the write half of its sink conn, so the two directions of one
// connection never share a mutex.
type RelayTask struct {
	Direction Direction
	Src       net.Conn
	Dst       net.Conn
	PeerAddr  string

	ConnToken *Token
	Shutdown  *Token
	Sink      metrics.Sink

	// Ctx carries the connection's OpenTelemetry span and its
	// logger.LogContext, shared by both directions (read-only after
	// StartConnection builds it); used to annotate byte-transfer events
	// and to tag every log line this task emits with connection_id,
	// peer_addr, and this task's direction.
	Ctx context.Context
}

// Run copies bytes from Src to Dst until one of the terminators in
// spec.md §4.2's table fires. It trips ConnToken unconditionally on
// exit; Token.Trip is idempotent, so this uniformly covers "read EOF",
// "read error", "write error", "shutdown tripped" (all of which must
// trip the token) and "connection token already tripped by the peer
// direction" (where tripping again is a harmless no-op) without needing
// to distinguish the cases in code.
func (t *RelayTask) Run() {
	defer t.ConnToken.Trip()

	taskCtx := t.directionContext()

	unblock := make(chan struct{})
	go func() {
		select {
		case <-t.ConnToken.Tripped():
		case <-t.Shutdown.Tripped():
		case <-unblock:
			return
		}
		// Force the in-flight or next Read on Src to return, without
		// disturbing the sibling task's Write on the same conn.
		unblockRead(t.Src)
	}()
	defer close(unblock)

	buf := bufpool.Get()
	defer bufpool.Put(buf)

	for {
		n, readErr := t.Src.Read(buf)
		if n > 0 {
			t.emitBytes(uint64(n))
			if err := writeFull(t.Dst, buf[:n]); err != nil {
				logger.DebugCtx(taskCtx, "relay write failed", logger.Err(err))
				return
			}
		}
		if readErr != nil {
			logger.DebugCtx(taskCtx, "relay read terminated", logger.Err(readErr))
			return
		}
	}
}

// directionContext returns t.Ctx with its LogContext's Direction field
// set to this task's direction, so every log line this task emits is
// tagged with which half of the connection produced it. Falls back to
// t.Ctx unchanged when it carries no LogContext (e.g. in tests that
// construct a RelayTask without setting Ctx).
func (t *RelayTask) directionContext() context.Context {
	lc := logger.FromContext(t.Ctx)
	if lc == nil {
		return t.Ctx
	}
	return logger.WithContext(t.Ctx, lc.WithDirection(t.Direction.String()))
}

func (t *RelayTask) emitBytes(n uint64) {
	kind := metrics.BytesUpstream
	if t.Direction == Downstream {
		kind = metrics.BytesDownstream
	}
	t.Sink.Send(metrics.MetricEvent{Kind: kind, Addr: t.PeerAddr, N: n})
	if t.Ctx != nil {
		telemetry.AddEvent(t.Ctx, telemetry.EventBytesTransferred,
			telemetry.Direction(t.Direction.String()), telemetry.Bytes(n))
	}
}

// writeFull writes all of buf to dst, completing a partial write or
// surfacing an error, never abandoning it midway (spec.md §4.2
// Scheduling: "writes are non-cancellable once started").
func writeFull(dst net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := dst.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// unblockRead forces a pending or future Read on conn to return
// promptly. TCP connections can half-close just their read side, which
// leaves the sibling task's Write on the same conn unaffected; other
// conn types (e.g. the in-process pipes used in tests) fall back to an
// expired read deadline, which every net.Conn implementation supports.
func unblockRead(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseRead()
		return
	}
	_ = conn.SetReadDeadline(time.Unix(0, 1))
}
