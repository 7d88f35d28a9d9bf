// Package monitoring exports prometheus metrics about held payments.
package monitoring

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hodlvoice"

// Outcome labels of resolved hook evaluations.
const (
	OutcomeContinue = "continue"
	OutcomeFail     = "fail"
	OutcomeReject   = "reject"
	OutcomeError    = "error"
)

// Metrics groups the collectors updated by the hook handlers and commands.
// All methods are safe to call on a nil *Metrics, which disables metrics.
type Metrics struct {
	held         *prometheus.GaugeVec
	resolutions  *prometheus.CounterVec
	storeLookups *prometheus.CounterVec
	commands     *prometheus.CounterVec
	blockHeight  prometheus.Gauge
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		held: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held_payments",
			Help:      "Number of hook evaluations currently holding a payment.",
		}, []string{"hook"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Hook evaluations by hook, outcome and reason.",
		}, []string{"hook", "outcome", "reason"}),
		storeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_lookups_total",
			Help:      "Decision store lookups by result.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Operator commands by name and result.",
		}, []string{"command", "result"}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Last chain tip announced by the host.",
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.held, m.resolutions, m.storeLookups, m.commands,
		m.blockHeight,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// HoldStarted records that a hook evaluation started holding a payment.
func (m *Metrics) HoldStarted(hook string) {
	if m == nil {
		return
	}
	m.held.WithLabelValues(hook).Inc()
}

// HoldEnded records that a hook evaluation stopped holding a payment.
func (m *Metrics) HoldEnded(hook string) {
	if m == nil {
		return
	}
	m.held.WithLabelValues(hook).Dec()
}

// Resolved records the outcome of a hook evaluation.
func (m *Metrics) Resolved(hook, outcome, reason string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(hook, outcome, reason).Inc()
}

// StoreLookup records the result of a decision store lookup.
func (m *Metrics) StoreLookup(result string) {
	if m == nil {
		return
	}
	m.storeLookups.WithLabelValues(result).Inc()
}

// Command records an operator command.
func (m *Metrics) Command(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(name, result).Inc()
}

// SetBlockHeight records the chain tip.
func (m *Metrics) SetBlockHeight(height uint32) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
}

// Exporter serves the metrics of a registry over HTTP.
type Exporter struct {
	server *http.Server
	ln     net.Listener
}

// StartExporter listens on addr and serves gatherer at /metrics.
func StartExporter(addr string, gatherer prometheus.Gatherer) (*Exporter, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		gatherer, promhttp.HandlerOpts{},
	))

	e := &Exporter{
		server: &http.Server{Handler: mux},
		ln:     ln,
	}
	go func() {
		err := e.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Prometheus exporter stopped: %v", err)
		}
	}()

	log.Infof("Prometheus exporter listening on %s", ln.Addr())

	return e, nil
}

// Addr returns the address the exporter listens on.
func (e *Exporter) Addr() net.Addr {
	return e.ln.Addr()
}

// Stop shuts the exporter down.
func (e *Exporter) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(ctx)
}
