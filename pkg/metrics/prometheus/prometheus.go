// Package prometheus exposes the relay's aggregate counters to Prometheus.
// It is wholly optional and lives on its own listener so that it never
// alters the spec-mandated plain/JSON contract served on metrics_addr
// (see pkg/httpapi).
package prometheus

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayctl/relayproxy/pkg/metrics"
)

// Source is anything that can hand back the current snapshot; satisfied
// by *metrics.Aggregator.
type Source interface {
	Snapshot() metrics.Snapshot
}

// Registrar copies the aggregator's published snapshot into a set of
// promauto-registered gauges and serves them on its own listener via
// promhttp.
type Registrar struct {
	source Source
	reg    *prometheus.Registry

	active   prometheus.Gauge
	total    prometheus.Gauge
	upBytes  prometheus.Gauge
	downByte prometheus.Gauge

	server *http.Server
	addr   string
}

// NewRegistrar builds a Registrar backed by a fresh prometheus.Registry
// (not the global default one, so multiple instances in tests don't
// collide on registration).
func NewRegistrar(source Source) *Registrar {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registrar{
		source: source,
		reg:    reg,
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of currently active relayed connections.",
		}),
		total: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_total",
			Help: "Total number of connections accepted and successfully paired.",
		}),
		upBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_bytes_upstream_total",
			Help: "Total bytes relayed from client to upstream.",
		}),
		downByte: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_bytes_downstream_total",
			Help: "Total bytes relayed from upstream to client.",
		}),
	}
}

// refresh copies the current snapshot into the gauges.
func (r *Registrar) refresh() {
	s := r.source.Snapshot()
	r.active.Set(float64(s.ActiveConnections))
	r.total.Set(float64(s.TotalConnections))
	r.upBytes.Set(float64(s.BytesUpstream))
	r.downByte.Set(float64(s.BytesDownstream))
}

// Start binds addr and begins serving /metrics in Prometheus exposition
// format, refreshing the gauges on every scrape so they never lag behind
// the aggregator's published snapshot.
func (r *Registrar) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	r.addr = ln.Addr().String()
	r.server = &http.Server{Handler: refreshingHandler{r, mux}}

	go func() { _ = r.server.Serve(ln) }()
	return nil
}

// Addr returns the bound listen address, resolved after Start (useful
// when addr was "host:0").
func (r *Registrar) Addr() string {
	return r.addr
}

// Stop gracefully shuts the Prometheus listener down.
func (r *Registrar) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// refreshingHandler refreshes the gauges from the live snapshot on every
// request, so a scrape always reflects the latest counters rather than a
// value from the last periodic tick.
type refreshingHandler struct {
	r    *Registrar
	next http.Handler
}

func (h refreshingHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.refresh()
	h.next.ServeHTTP(w, req)
}
