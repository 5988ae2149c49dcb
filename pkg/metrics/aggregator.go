package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/relayctl/relayproxy/internal/logger"
)

// Aggregator is the single-writer consumer of the metrics event stream.
// It is the only goroutine permitted to mutate its internal counters
// (spec.md §3 single-writer invariant); any number of readers may call
// Snapshot concurrently without blocking the writer or each other.
type Aggregator struct {
	events      <-chan MetricEvent
	logInterval time.Duration

	state Snapshot
	slot  atomic.Pointer[Snapshot]
}

// NewAggregator constructs an Aggregator reading from events, logging its
// snapshot every logInterval (zero disables the periodic log).
func NewAggregator(events <-chan MetricEvent, logInterval time.Duration) *Aggregator {
	a := &Aggregator{events: events, logInterval: logInterval}
	a.publish()
	return a
}

// Snapshot returns the most recently published snapshot. Safe for
// concurrent use by any number of readers; never blocks the writer.
func (a *Aggregator) Snapshot() Snapshot {
	return *a.slot.Load()
}

func (a *Aggregator) publish() {
	s := a.state
	a.slot.Store(&s)
}

// Run consumes events until the channel is closed (all producers have
// stopped, per spec.md §4.4 termination rule), publishing a fresh
// snapshot after every event and a log line on every logInterval tick.
// It publishes one final snapshot and returns once the channel closes.
func (a *Aggregator) Run(ctx context.Context) {
	var tick <-chan time.Time
	if a.logInterval > 0 {
		ticker := time.NewTicker(a.logInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-a.events:
			if !ok {
				a.publish()
				logger.Info("metrics aggregator stopped", "summary", a.state.logSummary())
				return
			}
			a.handle(ev)
			a.publish()
		case <-tick:
			logger.Info("metrics snapshot", "summary", a.state.logSummary())
		case <-ctx.Done():
			// The aggregator only truly terminates when its event
			// channel closes (spec.md §4.4); ctx cancellation here
			// only stops the periodic log ticking so Run can be used
			// with a bounded context in tests.
			tick = nil
		}
	}
}

func (a *Aggregator) handle(ev MetricEvent) {
	switch ev.Kind {
	case ConnectionOpened:
		a.state.ActiveConnections++
		a.state.TotalConnections++
	case ConnectionClosed:
		if a.state.ActiveConnections > 0 {
			a.state.ActiveConnections--
		}
	case BytesUpstream:
		a.state.BytesUpstream += ev.N
	case BytesDownstream:
		a.state.BytesDownstream += ev.N
	}
}

// Sink is the best-effort, non-blocking send side of the event channel.
// RelayTasks and the Acceptor hold a Sink, never the raw channel, so the
// drop-on-full policy (spec.md §4.4 Backpressure) is centralized here
// rather than re-implemented at every call site.
type Sink struct {
	events chan<- MetricEvent
}

// NewSink wraps a channel as a Sink.
func NewSink(events chan<- MetricEvent) Sink {
	return Sink{events: events}
}

// Send attempts to deliver ev without blocking. If the channel is full,
// the event is dropped and counters may under-report; this is the
// documented best-effort contract (spec.md §4.4, §7) so that a slow or
// stalled metrics consumer never stalls the data path.
func (s Sink) Send(ev MetricEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
