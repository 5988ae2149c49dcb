package relay

import (
	"errors"
	"net"
	"sync"

	"github.com/relayctl/relayproxy/internal/logger"
	"github.com/relayctl/relayproxy/pkg/metrics"
)

// Acceptor loops on the listen socket, dials the upstream for every
// accepted connection, and hands off successfully paired connections to
// StartConnection. Contract and tie-break rules: spec.md §4.1.
type Acceptor struct {
	listener   net.Listener
	targetAddr string
	shutdown   *Token
	sink       metrics.Sink

	// relays tracks every accepted connection from the moment Accept()
	// returns until its relay goroutines (if any) have exited, not just
	// the relay goroutines themselves.
	relays sync.WaitGroup
}

// NewAcceptor builds an Acceptor bound to listener, dialing targetAddr
// for every accepted connection.
func NewAcceptor(listener net.Listener, targetAddr string, shutdown *Token, sink metrics.Sink) *Acceptor {
	return &Acceptor{
		listener:   listener,
		targetAddr: targetAddr,
		shutdown:   shutdown,
		sink:       sink,
	}
}

// Run accepts until the listener is closed (the orchestrator closes it
// when the shutdown token trips, which is how "shutdown wins" the
// accept-vs-shutdown tie-break of spec.md §4.1 is realized: Accept
// unblocks with a closed-listener error at the moment shutdown begins)
// or until Accept reports a non-recoverable error, which is fatal and
// surfaces to the caller.
func (a *Acceptor) Run() error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if a.shutdown.IsTripped() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("accept failed", "error", err)
			return err
		}

		// Claim this connection's slot in the WaitGroup the moment
		// Accept() returns, before the dial or the handoff goroutine
		// even starts. Otherwise a shutdown tripped while the dial is
		// still in flight would see relays.Wait() return with this
		// connection uncounted, let WaitRelays() return early, and race
		// the orchestrator's close(o.events) against this goroutine's
		// later Sink.Send, which panics on a closed channel.
		a.relays.Add(1)
		go a.handleAccepted(conn)
	}
}

// handleAccepted dials the upstream for one accepted client connection.
// A dial failure is per-connection and recoverable: the client stream is
// closed, no ConnectionOpened is emitted, and the acceptor keeps
// running. Either way, it releases the WaitGroup slot Run claimed for
// this connection: on dial failure immediately; on success only after
// StartConnection has made its own Add(2) for the relay goroutines, so
// the counter is never observed at zero while this connection is still
// in flight.
func (a *Acceptor) handleAccepted(conn net.Conn) {
	peerAddr := conn.RemoteAddr().String()

	upstreamConn, err := net.Dial("tcp", a.targetAddr)
	if err != nil {
		logger.Warn("upstream dial failed", "peer", peerAddr, "target", a.targetAddr, "error", err)
		_ = conn.Close()
		a.relays.Done()
		return
	}

	a.sink.Send(metrics.MetricEvent{Kind: metrics.ConnectionOpened, Addr: peerAddr})
	StartConnection(&a.relays, conn, upstreamConn, peerAddr, a.shutdown, a.sink)
	a.relays.Done()
}

// WaitRelays blocks until every relay task spawned so far has exited.
// Used by the orchestrator during shutdown step 4 (spec.md §4.6).
func (a *Acceptor) WaitRelays() {
	a.relays.Wait()
}
