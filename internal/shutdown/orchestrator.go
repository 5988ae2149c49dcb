// Package shutdown implements the ShutdownOrchestrator of spec.md §4.6:
// the top-level coordinator that builds every subsystem in the defined
// startup order, installs the signal handler, and on signal fans
// cancellation out to every subsystem in the defined shutdown order,
// enforcing a force-exit deadline if the drain does not finish in time.
package shutdown

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relayctl/relayproxy/internal/logger"
	"github.com/relayctl/relayproxy/pkg/config"
	"github.com/relayctl/relayproxy/pkg/httpapi"
	"github.com/relayctl/relayproxy/pkg/metrics"
	"github.com/relayctl/relayproxy/pkg/metrics/prometheus"
	"github.com/relayctl/relayproxy/pkg/relay"
)

// Orchestrator owns every long-lived subsystem of one proxy process and
// drives its startup and shutdown in the order spec.md §4.6 mandates.
type Orchestrator struct {
	cfg *config.Config

	relayListener net.Listener
	shutdownToken *relay.Token

	acceptor   *relay.Acceptor
	aggregator *metrics.Aggregator
	httpServer *httpapi.Server
	promReg    *prometheus.Registrar

	events chan metrics.MetricEvent
	ready  chan struct{}
}

// New builds an Orchestrator from cfg. It does not open any listeners or
// spawn any goroutines; call Run to do so.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		shutdownToken: relay.NewToken(),
		ready:         make(chan struct{}),
	}
}

// Addr blocks until the relay listener is bound and returns its resolved
// address. Useful for callers and tests that configure listen_addr as
// "host:0" and need the ephemeral port that was actually bound.
func (o *Orchestrator) Addr() string {
	<-o.ready
	return o.relayListener.Addr().String()
}

// Run executes the full startup sequence, blocks until a shutdown signal
// is received and the orderly drain completes (or the force-exit deadline
// fires), and returns nil on a clean shutdown. It never returns a non-nil
// error for a graceful shutdown; only startup failures are reported.
func (o *Orchestrator) Run(ctx context.Context) error {
	// (1) Config was already built by the caller.

	// (2) Open the relay listener. The HTTP responder opens its own
	// listener lazily inside httpapi.Server.Start via ListenAndServe.
	ln, err := net.Listen("tcp", o.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind listen_addr %q: %w", o.cfg.ListenAddr, err)
	}
	o.relayListener = ln
	close(o.ready)
	logger.Info("relay listener bound", "addr", ln.Addr().String())

	// (3) Spawn the MetricsAggregator.
	o.events = make(chan metrics.MetricEvent, o.cfg.ChannelBufferSize)
	o.aggregator = metrics.NewAggregator(o.events, o.cfg.MetricsLogInterval)
	sink := metrics.NewSink(o.events)

	var subsystems sync.WaitGroup
	subsystems.Add(1)
	go func() {
		defer subsystems.Done()
		o.aggregator.Run(ctx)
	}()

	// (4) Spawn the HttpResponder.
	o.httpServer = httpapi.NewServer(o.cfg.MetricsAddr, o.aggregator)
	httpCtx, cancelHTTP := context.WithCancel(context.Background())
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- o.httpServer.Start(httpCtx)
	}()

	// Optional Prometheus exposition, on its own listener, never touching
	// the spec-mandated contract served by the HttpResponder above.
	if o.cfg.Telemetry.PrometheusAddr != "" {
		o.promReg = prometheus.NewRegistrar(o.aggregator)
		if err := o.promReg.Start(o.cfg.Telemetry.PrometheusAddr); err != nil {
			cancelHTTP()
			_ = ln.Close()
			return fmt.Errorf("failed to bind telemetry.prometheus_addr %q: %w", o.cfg.Telemetry.PrometheusAddr, err)
		}
		logger.Info("prometheus exposition listening", "addr", o.promReg.Addr())
	}

	// (5) Spawn the Acceptor.
	o.acceptor = relay.NewAcceptor(o.relayListener, o.cfg.TargetAddr, o.shutdownToken, sink)
	acceptorDone := make(chan error, 1)
	acceptorStopped := make(chan struct{})
	go func() {
		acceptorDone <- o.acceptor.Run()
		close(acceptorStopped)
	}()

	// (6) Install the SIGINT-only signal handler (spec.md §6: "No other
	// signal is intercepted").
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)

	logger.Info("relay proxy is running", "listen_addr", o.cfg.ListenAddr, "target_addr", o.cfg.TargetAddr)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case <-o.shutdownToken.Tripped():
		signal.Stop(sigChan)
		logger.Info("shutdown requested, initiating graceful shutdown")
	case <-acceptorStopped:
		signal.Stop(sigChan)
		// An acceptor failure is fatal to the acceptor and triggers
		// orderly shutdown of everything else (spec.md §4.1). The
		// acceptor's error, if any, is read and logged by shutdown.
	}

	return o.shutdown(ctx, cancelHTTP, httpDone, acceptorDone, &subsystems)
}

// shutdown runs the seven-step drain of spec.md §4.6, racing it against
// the force-exit watchdog.
func (o *Orchestrator) shutdown(ctx context.Context, cancelHTTP context.CancelFunc, httpDone, acceptorDone chan error, subsystems *sync.WaitGroup) error {
	drainDone := make(chan struct{})
	watchdogStop := make(chan struct{})

	go func() {
		select {
		case <-time.After(o.cfg.GracePeriod):
			logger.Warn("force-exit deadline reached, discarding in-flight bytes", "grace_period", o.cfg.GracePeriod.String())
			os.Exit(0)
		case <-watchdogStop:
		}
	}()

	go func() {
		defer close(drainDone)

		// 1. Trip the global token; the acceptor observes it (and the
		// listener close below unblocks its Accept call) and stops
		// accepting. Active connections continue.
		o.shutdownToken.Trip()
		_ = o.relayListener.Close()
		if err := <-acceptorDone; err != nil {
			logger.Error("acceptor failed", "error", err)
		}

		// 2. The HttpResponder observes the same shutdown by way of its
		// own context being cancelled here.
		cancelHTTP()

		// 3+4. Each RelayTask observes the global token (via its own
		// watcher goroutine, pkg/relay.RelayTask.Run), trips its
		// connection token, and exits; the orchestrator awaits every
		// relay task.
		o.acceptor.WaitRelays()

		// 5. All event senders are done; close the channel so the
		// aggregator's Run loop observes "closed" and finalizes.
		close(o.events)
		subsystems.Wait()

		// 6. Await the HttpResponder.
		if err := <-httpDone; err != nil {
			logger.Error("http responder stopped with error", "error", err)
		}

		if o.promReg != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.promReg.Stop(stopCtx); err != nil {
				logger.Error("prometheus registrar stop error", "error", err)
			}
		}

		// 7. Terminal snapshot.
		logger.Info("graceful shutdown complete", "final_snapshot", o.aggregator.Snapshot())
	}()

	<-drainDone
	close(watchdogStop)
	return nil
}

// Trip externally requests a shutdown, as if SIGINT had been received.
// Exposed for tests that need to drive shutdown deterministically.
func (o *Orchestrator) Trip() {
	o.shutdownToken.Trip()
}
