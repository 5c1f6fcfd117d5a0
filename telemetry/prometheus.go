package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turbomcp/turbomcp-go/transport"
)

// PrometheusTransportExporter mirrors one transport's Snapshot counters
// into a dedicated Prometheus registry, the gauge-per-counter plus
// custom-registry pattern this pack's monitoring agents use for their
// own /metrics endpoints.
type PrometheusTransportExporter struct {
	registry *prometheus.Registry

	bytesSent        prometheus.Gauge
	bytesReceived    prometheus.Gauge
	messagesSent     prometheus.Gauge
	messagesReceived prometheus.Gauge
}

// NewPrometheusTransportExporter builds an exporter labeled with kind
// (a transport's Kind, e.g. "stdio", "tcp"). Each exporter owns its own
// registry; the label keeps the series of several transports distinct
// when they are scraped together.
func NewPrometheusTransportExporter(kind string) *PrometheusTransportExporter {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"transport": kind}

	e := &PrometheusTransportExporter{
		registry: registry,
		bytesSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turbomcp_transport_bytes_sent",
			Help:        "Total bytes sent on this transport.",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turbomcp_transport_bytes_received",
			Help:        "Total bytes received on this transport.",
			ConstLabels: labels,
		}),
		messagesSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turbomcp_transport_messages_sent",
			Help:        "Total messages sent on this transport.",
			ConstLabels: labels,
		}),
		messagesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turbomcp_transport_messages_received",
			Help:        "Total messages received on this transport.",
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(e.bytesSent, e.bytesReceived, e.messagesSent, e.messagesReceived)
	return e
}

// Update sets every gauge from snap.
func (e *PrometheusTransportExporter) Update(snap transport.Snapshot) {
	e.bytesSent.Set(float64(snap.BytesSent))
	e.bytesReceived.Set(float64(snap.BytesReceived))
	e.messagesSent.Set(float64(snap.MessagesSent))
	e.messagesReceived.Set(float64(snap.MessagesReceived))
}

// Handler serves this exporter's registry in Prometheus exposition
// format, suitable for mounting at "/metrics".
func (e *PrometheusTransportExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
