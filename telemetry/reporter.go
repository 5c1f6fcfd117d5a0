package telemetry

import (
	"context"
	"time"

	"github.com/turbomcp/turbomcp-go/transport"
)

// Reporter periodically samples a transport's Metrics snapshot into
// both a Metrics recorder (OTel or no-op) and, optionally, a
// PrometheusTransportExporter — this pack commonly wires both
// exporters side by side rather than picking just one.
type Reporter struct {
	t        transport.Transport
	metrics  Metrics
	prom     *PrometheusTransportExporter
	interval time.Duration
}

// NewReporter constructs a Reporter for t. metrics defaults to a
// no-op recorder if nil; prom may be nil to skip Prometheus export;
// interval defaults to 10s if non-positive.
func NewReporter(t transport.Transport, metrics Metrics, prom *PrometheusTransportExporter, interval time.Duration) *Reporter {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reporter{t: t, metrics: metrics, prom: prom, interval: interval}
}

// Run samples on Reporter's interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.sample()
	for {
		select {
		case <-ticker.C:
			r.sample()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reporter) sample() {
	snap := r.t.Metrics()
	kind := string(r.t.Kind())

	r.metrics.RecordGauge("transport.bytes_sent", float64(snap.BytesSent), "transport", kind)
	r.metrics.RecordGauge("transport.bytes_received", float64(snap.BytesReceived), "transport", kind)
	r.metrics.RecordGauge("transport.messages_sent", float64(snap.MessagesSent), "transport", kind)
	r.metrics.RecordGauge("transport.messages_received", float64(snap.MessagesReceived), "transport", kind)

	if r.prom != nil {
		r.prom.Update(snap)
	}
}
