package telemetry

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/transport"
)

type fakeTransport struct {
	transport.StateHolder
	kind transport.Kind
	snap transport.Snapshot
}

func (f *fakeTransport) Kind() transport.Kind             { return f.kind }
func (f *fakeTransport) Capabilities() transport.Capabilities { return transport.Capabilities{} }
func (f *fakeTransport) State() transport.State            { return f.Load() }
func (f *fakeTransport) Metrics() transport.Snapshot        { return f.snap }
func (f *fakeTransport) Endpoint() string                   { return "fake://" }
func (f *fakeTransport) Connect(context.Context) error       { return nil }
func (f *fakeTransport) Disconnect(context.Context) error    { return nil }
func (f *fakeTransport) Send(context.Context, transport.Message) error { return nil }
func (f *fakeTransport) Receive(context.Context) (*transport.Message, error) { return nil, nil }

var _ transport.Transport = (*fakeTransport)(nil)

type recordingMetrics struct {
	gauges map[string]float64
}

func (r *recordingMetrics) IncCounter(string, float64, ...string)          {}
func (r *recordingMetrics) RecordTimer(string, time.Duration, ...string)   {}
func (r *recordingMetrics) RecordGauge(name string, value float64, _ ...string) {
	r.gauges[name] = value
}

func TestReporterSamplesIntoMetricsAndPrometheus(t *testing.T) {
	ft := &fakeTransport{kind: "fake", snap: transport.Snapshot{
		BytesSent: 10, BytesReceived: 20, MessagesSent: 1, MessagesReceived: 2,
	}}
	rec := &recordingMetrics{gauges: map[string]float64{}}
	prom := NewPrometheusTransportExporter("fake")

	rep := NewReporter(ft, rec, prom, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go rep.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.Equal(t, float64(10), rec.gauges["transport.bytes_sent"])
	require.Equal(t, float64(20), rec.gauges["transport.bytes_received"])
	require.Equal(t, float64(1), rec.gauges["transport.messages_sent"])
	require.Equal(t, float64(2), rec.gauges["transport.messages_received"])

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	prom.Handler().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	require.True(t, bytes.Contains(rr.Body.Bytes(), []byte("turbomcp_transport_bytes_sent")))
}
